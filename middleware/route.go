package middleware

import (
	midsec "PSocial/middleware/security"

	"github.com/gin-gonic/gin"
)

// 配置选项
type RouteOpt struct {
	IsAuth bool
}

var authHandler gin.HandlerFunc

// SetAuth 替换鉴权中间件（测试里用固定 secret）
func SetAuth(h gin.HandlerFunc) { authHandler = h }

func auth() gin.HandlerFunc {
	if authHandler != nil {
		return authHandler
	}
	return midsec.Middleware(midsec.DefaultOptions())
}

// 封装 POST
func POST(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.IsAuth {
		r.POST(path, auth(), handler)
	} else {
		r.POST(path, handler)
	}
}

// 封装 GET
func GET(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	if opt.IsAuth {
		r.GET(path, auth(), handler)
	} else {
		r.GET(path, handler)
	}
}
