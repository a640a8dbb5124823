package safe

import (
	"fmt"
	"reflect"

	"PSocial/logger"
	"PSocial/tools/errs"

	"go.uber.org/zap"
)

// MustNotNil panics if the given value is nil.
// Useful for enforcing required fields during struct initialization.
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// SafeGo starts a new goroutine that recovers from panic,
// so that panics don't crash the entire program.
func SafeGo(f func()) {
	go func() {
		defer Recover("SafeGo")
		f()
	}()
}

// Recover is meant to be deferred; it logs a recovered panic under the given scope.
func Recover(scope string) {
	if r := recover(); r != nil {
		logger.Error("panic recovered", zap.String("scope", scope), zap.Error(errs.ErrPanic(r)))
	}
}

// Run calls f and converts a panic into an error.
func Run(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.ErrPanic(r)
		}
	}()
	return f()
}
