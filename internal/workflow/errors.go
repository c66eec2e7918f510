package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind — стабильный тип ошибки, по которому транспорт выбирает код ответа.
type Kind string

const (
	KindValidation Kind = "VALIDATION"
	KindNotFound   Kind = "NOT_FOUND"
	KindConflict   Kind = "CONFLICT"
	KindForbidden  Kind = "FORBIDDEN"
	KindInternal   Kind = "INTERNAL"
)

// Базовые ошибки для errors.Is().
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
	ErrInternal   = errors.New("internal error")

	// ErrUnknownReference возвращает справочник, если ученика/категории нет.
	ErrUnknownReference = errors.New("unknown reference")

	// ErrDuplicateKey возвращает хранилище при повторном ключе идемпотентности.
	ErrDuplicateKey = errors.New("duplicate idempotency key")
)

var kindSentinels = map[Kind]error{
	KindValidation: ErrValidation,
	KindNotFound:   ErrNotFound,
	KindConflict:   ErrConflict,
	KindForbidden:  ErrForbidden,
	KindInternal:   ErrInternal,
}

// Error — ошибка операции с типом и (для валидации) ошибками по полям.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	s := e.Op + ": " + e.describe()
	if e.Err != nil {
		s += fmt.Sprintf(": %v", e.Err)
	}
	return s
}

// describe — сообщение плюс ошибки по полям в стабильном порядке.
func (e *Error) describe() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func validationErr(op string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: "invalid input", Fields: fields}
}

func notFoundErr(op, what string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: what + " not found"}
}

func conflictErr(op, msg string) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: msg}
}

func forbiddenErr(op, msg string) *Error {
	return &Error{Kind: KindForbidden, Op: op, Message: msg}
}

func internalErr(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Message: "storage failure", Err: err}
}

// KindOf — тип ошибки; всё, что не *Error, считается внутренней ошибкой.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// FieldErrors — ошибки по полям, если это ошибка валидации.
func FieldErrors(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindValidation {
		return e.Fields
	}
	return nil
}

// Message — текст для клиента без деталей хранилища.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindInternal {
			return "internal server error"
		}
		return e.describe()
	}
	return "internal server error"
}

// wrap приводит ошибку из транзакции к *Error (уже типизированные не трогаем).
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return internalErr(op, err)
}
