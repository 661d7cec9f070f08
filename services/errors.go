package services

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind определяет класс ошибки леджера
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindInactiveAccount   ErrorKind = "inactive_account"
	KindInvalidAmount     ErrorKind = "invalid_amount"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindSameAccount       ErrorKind = "same_account"
	KindDuplicateName     ErrorKind = "duplicate_name"
	KindNegativeBalance   ErrorKind = "negative_balance"
	KindInvalidInput      ErrorKind = "invalid_input"
)

// Error - типизированная бизнес-ошибка. Сообщение пригодно для показа пользователю.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is позволяет сравнивать ошибки с сентинелами по классу: errors.Is(err, ErrNotFound)
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInactiveAccount   = &Error{Kind: KindInactiveAccount}
	ErrInvalidAmount     = &Error{Kind: KindInvalidAmount}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrSameAccount       = &Error{Kind: KindSameAccount}
	ErrDuplicateName     = &Error{Kind: KindDuplicateName}
	ErrNegativeBalance   = &Error{Kind: KindNegativeBalance}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
)

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf возвращает класс ошибки или пустую строку для инфраструктурных ошибок
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
