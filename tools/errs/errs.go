package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	pkgerrs "github.com/pkg/errors"
)

// 通用错误码，数值与 HTTP 状态保持一致，方便直接映射
const (
	ArgsError           = 400
	Unauthorized        = 401
	NotFound            = 404
	AlreadyExists       = 409
	ServerInternalError = 500
)

var (
	ErrArgs           = NewCodeError(ArgsError, "invalid arguments")
	ErrTokenExpired   = NewCodeError(Unauthorized, "Authentication token is missing or invalid")
	ErrTokenInvalid   = NewCodeError(Unauthorized, "Invalid Token")
	ErrRecordNotFound = NewCodeError(NotFound, "record not found")
	ErrRecordIsExist  = NewCodeError(AlreadyExists, "record already exists")
	ErrInternal       = NewCodeError(ServerInternalError, "Internal Server Error")
)

// Error 携带 kv 上下文的普通错误
type Error interface {
	error
	Wrap() error
	WrapMsg(msg string, kv ...any) error
}

type errorString struct {
	s string
}

func (e *errorString) Error() string { return e.s }

func (e *errorString) Wrap() error { return withStack(e) }

func (e *errorString) WrapMsg(msg string, kv ...any) error {
	return withStack(NewErrorWrapper(e, toString(msg, kv)))
}

func New(s string, kv ...any) Error {
	return &errorString{s: toString(s, kv)}
}

// ErrWrapper 给底层错误追加一段描述，Unwrap 仍可拿到原始错误
type ErrWrapper interface {
	error
	Unwrap() error
}

type errWrapper struct {
	err error
	msg string
}

func NewErrorWrapper(err error, msg string) ErrWrapper {
	return &errWrapper{err: err, msg: msg}
}

func (e *errWrapper) Error() string {
	if e.msg == "" {
		return e.err.Error()
	}
	return e.msg + ": " + e.err.Error()
}

func (e *errWrapper) Unwrap() error { return e.err }

func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return withStack(err)
}

func WrapMsg(err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	return withStack(NewErrorWrapper(err, toString(msg, kv)))
}

// Unwrap 剥掉所有包装层，返回最内层错误
func Unwrap(err error) error {
	for err != nil {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return err
}

// AsCode 从错误链中取出 CodeError
func AsCode(err error) (CodeError, bool) {
	var ce CodeError
	if errors.As(err, &ce) {
		return ce, true
	}
	return CodeError{}, false
}

// HTTPStatus 错误 -> HTTP 状态码；非 CodeError 一律 500
func HTTPStatus(err error) int {
	ce, ok := AsCode(err)
	if !ok {
		return http.StatusInternalServerError
	}
	if ce.Code >= 400 && ce.Code < 600 {
		return ce.Code
	}
	return http.StatusInternalServerError
}

func withStack(err error) error {
	return pkgerrs.WithStack(err)
}

func toString(msg string, kv []any) string {
	if len(kv) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprint(kv[i]))
		b.WriteString("=")
		if i+1 < len(kv) {
			b.WriteString(fmt.Sprint(kv[i+1]))
		} else {
			b.WriteString("MISSING")
		}
	}
	return b.String()
}
