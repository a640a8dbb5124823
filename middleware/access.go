package middleware

import (
	"strconv"
	"time"

	"PSocial/logger"
	"PSocial/service/metrics"
	"PSocial/tools/resp"
	"PSocial/tools/safe"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Metrics 记录请求耗时；未匹配路由统一记为 unmatched，避免 label 爆炸
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.ObserveHTTP(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// AccessLog 长连接（ws / sse）只在结束时打一条
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("cost", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if c.Writer.Status() >= 500 {
			logger.Warn("http", fields...)
			return
		}
		logger.Debug("http", fields...)
	}
}

// Recovery panic 转 500，并走统一日志
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := safe.Run(func() error {
			c.Next()
			return nil
		})
		if err == nil {
			return
		}
		if c.Writer.Written() {
			logger.Error("panic after response written", zap.String("path", c.Request.URL.Path), zap.Error(err))
			c.Abort()
			return
		}
		resp.Fail(c, err)
	}
}
