package services

import (
	"errors"
	"fmt"
)

// ErrorCode ist der stabile, nach außen sichtbare Fehlercode.
type ErrorCode string

const (
	CodeValidation        ErrorCode = "VALIDATION_ERROR"
	CodeSelfPair          ErrorCode = "SELF_PAIR"
	CodeDuplicatePending  ErrorCode = "DUPLICATE_PENDING"
	CodeInvalidTransition ErrorCode = "INVALID_STATE_TRANSITION"
	CodeUnauthenticated   ErrorCode = "UNAUTHENTICATED"
	CodeForbidden         ErrorCode = "FORBIDDEN"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodePersistence       ErrorCode = "PERSISTENCE_ERROR"
)

// Error trägt einen Code für die HTTP-Schicht und eine Message, mit der
// der Aufrufer etwas anfangen kann (welches Feld, welcher Ist-Status).
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Errf baut einen Service-Fehler mit formatierter Message.
func Errf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// persistenceErr kapselt Store-Fehler ohne Storage-Interna preiszugeben;
// das Original gehört ins Log, nicht in die Response.
func persistenceErr() *Error {
	return &Error{Code: CodePersistence, Message: "a storage error occurred, please retry"}
}

// AsServiceError entpackt einen *Error aus einer Fehlerkette.
func AsServiceError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
