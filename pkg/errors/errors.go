package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind represents the class of failure a sync run can encounter
type Kind string

const (
	KindConfiguration  Kind = "configuration"
	KindAuthentication Kind = "authentication"
	KindRemoteService  Kind = "remote_service"
	KindDownload       Kind = "download"
	KindFilesystem     Kind = "filesystem"
)

// Error is a failure annotated with its kind, the operation that produced it
// and, for remote failures, an HTTP or API status code.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}

	prefix := string(e.Kind) + " error"
	if e.Op != "" {
		prefix = fmt.Sprintf("%s in %s", prefix, e.Op)
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s (code %d): %s", prefix, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", prefix, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Configuration creates a configuration error
func Configuration(op, message string) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Message: message}
}

// Authentication creates an authentication error
func Authentication(op, message string, code int) *Error {
	return &Error{Kind: KindAuthentication, Op: op, Message: message, Code: code}
}

// RemoteService creates a remote service error. Code 0 means the request
// never produced a response.
func RemoteService(op string, code int, err error) *Error {
	return &Error{Kind: KindRemoteService, Op: op, Code: code, Err: err}
}

// Download wraps a failure to fetch one photo
func Download(op string, err error) *Error {
	return &Error{Kind: KindDownload, Op: op, Err: err}
}

// Filesystem wraps a local I/O failure
func Filesystem(op string, err error) *Error {
	return &Error{Kind: KindFilesystem, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err's chain contains an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// IsFatal reports whether err must abort the whole run
func IsFatal(err error) bool {
	return IsKind(err, KindConfiguration) || IsKind(err, KindAuthentication)
}

// Retryable reports whether a remote call that failed with err may succeed
// when repeated.
func Retryable(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	if e.Kind != KindRemoteService {
		return false
	}
	return IsRetryableStatusCode(e.Code)
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
