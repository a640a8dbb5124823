package specialerror

import (
	"errors"

	"PSocial/tools/errs"

	"github.com/jackc/pgx/v5"
	"go.mongodb.org/mongo-driver/mongo"
)

var handlers []func(err error) (errs.CodeError, bool)

func init() {
	_ = AddErrHandler(func(err error) (errs.CodeError, bool) {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, mongo.ErrNoDocuments) {
			return errs.ErrRecordNotFound, true
		}
		return errs.CodeError{}, false
	})
	_ = AddErrHandler(func(err error) (errs.CodeError, bool) {
		if mongo.IsDuplicateKeyError(err) {
			return errs.ErrRecordIsExist, true
		}
		return errs.CodeError{}, false
	})
}

// AddErrHandler 注册驱动错误 -> CodeError 的翻译
func AddErrHandler(h func(err error) (errs.CodeError, bool)) error {
	if h == nil {
		return errs.New("nil handler")
	}
	handlers = append(handlers, h)
	return nil
}

// ErrCode 优先取链上的 CodeError，否则走已注册的翻译
func ErrCode(err error) (errs.CodeError, bool) {
	if err == nil {
		return errs.CodeError{}, false
	}
	if ce, ok := errs.AsCode(err); ok {
		return ce, true
	}
	for _, h := range handlers {
		if ce, ok := h(err); ok {
			return ce, true
		}
	}
	return errs.CodeError{}, false
}
