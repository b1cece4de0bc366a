// Package apierr defines the error kinds surfaced by the Tower client.
//
// Every failure the CLI reports is an *Error carrying a Kind. The Kind decides
// the process exit code, so scripts can branch on the class of failure.
package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind int

const (
	KindGeneral Kind = iota
	KindUsage
	KindAuth
	KindForbidden
	KindNotFound
	KindMultipleResults
	KindFound
	KindServer
	KindBadRequest
	KindConnection
	KindTimeout
	KindJobFailed
)

var kindNames = map[Kind]string{
	KindGeneral:         "error",
	KindUsage:           "usage error",
	KindAuth:            "authentication error",
	KindForbidden:       "forbidden",
	KindNotFound:        "not found",
	KindMultipleResults: "multiple results",
	KindFound:           "found",
	KindServer:          "server error",
	KindBadRequest:      "bad request",
	KindConnection:      "connection error",
	KindTimeout:         "timeout",
	KindJobFailed:       "job failed",
}

var exitCodes = map[Kind]int{
	KindGeneral:         1,
	KindUsage:           2,
	KindNotFound:        4,
	KindMultipleResults: 5,
	KindServer:          8,
	KindTimeout:         9,
	KindAuth:            16,
	KindForbidden:       17,
	KindFound:           20,
	KindBadRequest:      40,
	KindConnection:      41,
	KindJobFailed:       99,
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ExitCode returns the process exit status for the kind.
func (k Kind) ExitCode() int {
	if c, ok := exitCodes[k]; ok {
		return c
	}
	return 1
}

// Error is a classified failure. Errors raised from an HTTP response also
// carry the request and the raw response text for diagnostics.
type Error struct {
	Kind    Kind
	Message string

	Method       string
	URL          string
	Status       int
	RequestBody  string
	ResponseBody string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}

// Is matches any *Error of the same Kind, so the package sentinels work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Detail returns a multi-line description including the request and response.
func (e *Error) Detail() string {
	if e.URL == "" {
		return e.Error()
	}
	s := fmt.Sprintf("%s\n  %s %s (HTTP %d)", e.Error(), e.Method, e.URL, e.Status)
	if e.RequestBody != "" {
		s += "\n  request: " + e.RequestBody
	}
	if e.ResponseBody != "" {
		s += "\n  response: " + e.ResponseBody
	}
	return s
}

// Sentinels for errors.Is. Only the Kind is compared.
var (
	ErrUsage           = &Error{Kind: KindUsage}
	ErrAuth            = &Error{Kind: KindAuth}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrMultipleResults = &Error{Kind: KindMultipleResults}
	ErrFound           = &Error{Kind: KindFound}
	ErrServer          = &Error{Kind: KindServer}
	ErrBadRequest      = &Error{Kind: KindBadRequest}
	ErrConnection      = &Error{Kind: KindConnection}
	ErrTimeout         = &Error{Kind: KindTimeout}
	ErrJobFailed       = &Error{Kind: KindJobFailed}
)

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Usage(format string, args ...interface{}) *Error {
	return New(KindUsage, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func MultipleResults(format string, args ...interface{}) *Error {
	return New(KindMultipleResults, format, args...)
}

func Found(format string, args ...interface{}) *Error {
	return New(KindFound, format, args...)
}

func BadRequest(format string, args ...interface{}) *Error {
	return New(KindBadRequest, format, args...)
}

// KindOf returns the Kind of the first *Error in err's chain, or KindGeneral.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindGeneral
}

// ExitCode maps err to a process exit status. A nil error exits 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return KindOf(err).ExitCode()
}
