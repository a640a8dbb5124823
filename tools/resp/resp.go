package resp

import (
	"net/http"

	"PSocial/logger"
	"PSocial/tools/errs"
	"PSocial/tools/specialerror"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Body 统一响应体
type Body struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Meta    any    `json:"meta,omitempty"`
	Code    int    `json:"code,omitempty"`
}

func OK(c *gin.Context, status int, msg string, data any) {
	c.JSON(status, Body{Success: true, Message: msg, Data: data})
}

func OKWithMeta(c *gin.Context, msg string, data, meta any) {
	c.JSON(http.StatusOK, Body{Success: true, Message: msg, Data: data, Meta: meta})
}

// Fail CodeError 原样透出 Msg；其余错误只记日志，对外统一 500
func Fail(c *gin.Context, err error) {
	c.AbortWithStatusJSON(Failure(c, err))
}

func Failure(c *gin.Context, err error) (int, Body) {
	ce, ok := specialerror.ErrCode(err)
	if !ok || ce.Code >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		return http.StatusInternalServerError, Body{Message: errs.ErrInternal.Msg, Code: errs.ServerInternalError}
	}
	return errs.HTTPStatus(ce), Body{Message: ce.Msg, Code: ce.Code}
}
