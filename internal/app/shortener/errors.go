package shortener

import "errors"

// Outcomes a caller of Service can observe. Store and generator errors are
// folded into ErrStorageFailure.
var (
	ErrInvalidURL     = errors.New("invalid url")
	ErrStorageFailure = errors.New("storage failure")
)

type ErrorKind int

const (
	KindInvalidURL ErrorKind = iota + 1
	KindStorageFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidURL:
		return "invalid_url"
	case KindStorageFailure:
		return "storage_failure"
	default:
		return "unknown"
	}
}

// Error is returned by Service. Error() is safe to show to end users; the
// internal cause is reachable through errors.Is / errors.As only.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() []error {
	errs := []error{e.outcome()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *Error) outcome() error {
	if e.Kind == KindInvalidURL {
		return ErrInvalidURL
	}
	return ErrStorageFailure
}

func invalidURL() *Error {
	return &Error{Kind: KindInvalidURL, Message: "The provided link is not valid."}
}

func storageFailure(message string, cause error) *Error {
	return &Error{Kind: KindStorageFailure, Message: message, Err: cause}
}
