package api

import (
	"errors"
	"fmt"
)

// ValidationError is raised client-side before any request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// RequestError is a transport failure or a non-2xx reply without a usable
// error payload.
type RequestError struct {
	Op     string
	Status int
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// BackendError carries a message produced by the backend. It is shown to
// the user verbatim.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string { return e.Message }

// MalformedResponseError means the backend answered with something that is
// not the expected JSON document.
type MalformedResponseError struct {
	Op  string
	Err error
}

func (e *MalformedResponseError) Error() string { return "unexpected server response" }

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// UserMessage returns the text to show for err in a banner.
func UserMessage(err error) string {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Message
	}
	var me *MalformedResponseError
	if errors.As(err, &me) {
		return me.Error()
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsValidation reports whether err was raised before contacting the backend.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
