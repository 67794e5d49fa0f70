package errs

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

func ErrPanic(r any) error {
	return ErrPanicMsg(r, CodeInternal, "panic error")
}

func ErrPanicMsg(r any, code int, msg string) error {
	if r == nil {
		return nil
	}
	if err, ok := r.(error); ok {
		return pkgerrors.WithStack(&CodeError{
			Code:   code,
			Msg:    msg,
			Detail: fmt.Sprintf("%T: %v", err, err),
		})
	}
	err := &CodeError{
		Code:   code,
		Msg:    msg,
		Detail: fmt.Sprint(r),
	}
	return pkgerrors.WithStack(err)
}
