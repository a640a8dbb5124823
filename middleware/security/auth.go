package security

import (
	"net/http"
	"strings"

	"PSocial/global/config"
	"PSocial/tools/errs"
	"PSocial/tools/resp"
	jwtx "PSocial/tools/security"

	"github.com/gin-gonic/gin"
)

// context key，后续 handler 统一用 UserID(c) 读取
const (
	CtxUserIDKey = "userId"
	CtxEmailKey  = "email"
)

// AccessCookie 登录服务写下的 access token cookie
const AccessCookie = "social_access_token"

type Options struct {
	JWT                       jwtx.Options
	CookieName                string // 默认 social_access_token
	QueryParam                string // 非空时也从 query 取（websocket 握手用）
	EnableAuthorizationBearer bool   // 默认 true
}

func DefaultOptions() *Options {
	return &Options{
		JWT: jwtx.Options{
			Secret: []byte(config.Global.JWT.Secret),
			Alg:    config.Global.JWT.Alg,
			TTL:    config.Global.JWT.TTL,
		},
		CookieName:                AccessCookie,
		EnableAuthorizationBearer: true,
	}
}

// TokenFromRequest 依次尝试 query -> cookie -> Authorization: Bearer
func TokenFromRequest(r *http.Request, opts *Options) string {
	if opts.QueryParam != "" {
		if t := strings.TrimSpace(r.URL.Query().Get(opts.QueryParam)); t != "" {
			return t
		}
	}
	if opts.CookieName != "" {
		if ck, err := r.Cookie(opts.CookieName); err == nil && strings.TrimSpace(ck.Value) != "" {
			return strings.TrimSpace(ck.Value)
		}
	}
	if opts.EnableAuthorizationBearer {
		if authz := strings.TrimSpace(r.Header.Get("Authorization")); len(authz) > 7 &&
			strings.EqualFold(authz[:7], "bearer ") {
			return strings.TrimSpace(authz[7:])
		}
	}
	return ""
}

// Authenticate 取 token 并校验，返回 claims
func Authenticate(r *http.Request, opts *Options) (*jwtx.Claims, error) {
	token := TokenFromRequest(r, opts)
	if token == "" {
		return nil, errs.ErrTokenExpired.Wrap()
	}
	claims, err := jwtx.Verify(opts.JWT, token)
	if err != nil {
		return nil, errs.ErrTokenInvalid.WrapMsg(err.Error())
	}
	return claims, nil
}

func Middleware(opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	return func(c *gin.Context) {
		claims, err := Authenticate(c.Request, opts)
		if err != nil {
			resp.Fail(c, err)
			return
		}
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxEmailKey, claims.Email)
		c.Next()
	}
}

// UserID 鉴权中间件写入的当前用户
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(CtxUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id > 0
}
