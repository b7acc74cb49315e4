package ledger

import (
	"errors"
	"fmt"
)

// Kind classifies ledger failures.
type Kind string

const (
	KindUnbalancedEntry     Kind = "unbalanced_entry"
	KindUnknownAccount      Kind = "unknown_account"
	KindDuplicatePosting    Kind = "duplicate_posting"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindReservationFailure  Kind = "reservation_failure"
	KindValidation          Kind = "validation"
	KindDuplicateCode       Kind = "duplicate_code"
	KindNotFound            Kind = "not_found"
	KindIntegrityHalt       Kind = "integrity_halt"
	KindInternal            Kind = "internal"
)

// Error is the error type returned by every ledger operation.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Msg != "" {
		msg = e.Msg
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == ""
}

var (
	ErrUnbalancedEntry     = &Error{Kind: KindUnbalancedEntry}
	ErrUnknownAccount      = &Error{Kind: KindUnknownAccount}
	ErrDuplicatePosting    = &Error{Kind: KindDuplicatePosting}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance}
	ErrReservationFailure  = &Error{Kind: KindReservationFailure}
	ErrValidation          = &Error{Kind: KindValidation}
	ErrDuplicateCode       = &Error{Kind: KindDuplicateCode}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrIntegrityHalt       = &Error{Kind: KindIntegrityHalt}
)

func newError(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func validationError(op, format string, args ...any) *Error {
	return newError(KindValidation, op, format, args...)
}

// NotFound builds a not-found error. Stores use it for missing rows.
func NotFound(op, format string, args ...any) *Error {
	return newError(KindNotFound, op, format, args...)
}

// DuplicatePosting is returned by stores when the reference pair is taken.
func DuplicatePosting(ref ReferenceType, id string) *Error {
	return &Error{Kind: KindDuplicatePosting, Op: "insert entry", Msg: fmt.Sprintf("reference %s/%s already posted", ref, id)}
}

// DuplicateCode is returned by stores when an account code is taken.
func DuplicateCode(code string) *Error {
	return &Error{Kind: KindDuplicateCode, Op: "insert account", Msg: fmt.Sprintf("account code %q already exists", code)}
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindInternal
}

const genericUserMessage = "the request could not be completed, try again or contact support"

// UserMessage is the text shown to end users for err. Only actionable kinds
// expose their own message.
func UserMessage(err error) string {
	var le *Error
	if !errors.As(err, &le) {
		return genericUserMessage
	}
	switch le.Kind {
	case KindInsufficientBalance, KindValidation:
		if le.Msg != "" {
			return le.Msg
		}
		return string(le.Kind)
	case KindReservationFailure:
		return "the withdrawal could not be created and no funds were lost, try again or contact support"
	}
	return genericUserMessage
}
