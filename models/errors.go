package models

import (
	"fmt"
	"strings"
)

// ErrorKind classifies every failure the gateway, aggregator and client report
type ErrorKind int

const (
	KindEmptyPayload ErrorKind = iota + 1
	KindUnsupportedFormat
	KindUnknownSlot
	KindIncompleteRequest
	KindPayloadTooLarge
	KindMalformedPipelineOutput
	KindLengthMismatch
	KindPipelineTimeout
	KindServerError
	KindUnexpectedResponseFormat
)

var kindNames = map[ErrorKind]string{
	KindEmptyPayload:             "EmptyPayload",
	KindUnsupportedFormat:        "UnsupportedFormat",
	KindUnknownSlot:              "UnknownSlot",
	KindIncompleteRequest:        "IncompleteRequest",
	KindPayloadTooLarge:          "PayloadTooLarge",
	KindMalformedPipelineOutput:  "MalformedPipelineOutput",
	KindLengthMismatch:           "LengthMismatch",
	KindPipelineTimeout:          "PipelineTimeout",
	KindServerError:              "ServerError",
	KindUnexpectedResponseFormat: "UnexpectedResponseFormat",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Sentinels for errors.Is; they match any *Error of the same kind
var (
	ErrEmptyPayload             = &Error{Kind: KindEmptyPayload}
	ErrUnsupportedFormat        = &Error{Kind: KindUnsupportedFormat}
	ErrUnknownSlot              = &Error{Kind: KindUnknownSlot}
	ErrIncompleteRequest        = &Error{Kind: KindIncompleteRequest}
	ErrPayloadTooLarge          = &Error{Kind: KindPayloadTooLarge}
	ErrMalformedPipelineOutput  = &Error{Kind: KindMalformedPipelineOutput}
	ErrLengthMismatch           = &Error{Kind: KindLengthMismatch}
	ErrPipelineTimeout          = &Error{Kind: KindPipelineTimeout}
	ErrServerError              = &Error{Kind: KindServerError}
	ErrUnexpectedResponseFormat = &Error{Kind: KindUnexpectedResponseFormat}
)

// Error is the typed failure returned to callers. Slots is set for
// IncompleteRequest, StatusCode for ServerError.
type Error struct {
	Kind       ErrorKind
	Reason     string
	Slots      []SlotName
	StatusCode int
	Err        error
}

// NewError builds an error of the given kind with a formatted reason
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Incomplete reports the slots a multi-file submission is missing
func Incomplete(missing []SlotName) *Error {
	names := make([]string, len(missing))
	for i, slot := range missing {
		names[i] = string(slot)
	}
	return &Error{
		Kind:   KindIncompleteRequest,
		Reason: "missing required files: " + strings.Join(names, ", "),
		Slots:  missing,
	}
}

// ServerStatus reports a non-2xx HTTP status from the remote side
func ServerStatus(code int) *Error {
	return &Error{
		Kind:       KindServerError,
		Reason:     fmt.Sprintf("received HTTP status code %d", code),
		StatusCode: code,
	}
}

// Wrap attaches a cause to a new error of the given kind
func Wrap(kind ErrorKind, err error, format string, args ...any) *Error {
	e := NewError(kind, format, args...)
	e.Err = err
	return e
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind so sentinels work with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}
