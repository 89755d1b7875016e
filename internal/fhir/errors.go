package fhir

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

const maxBodyInMessage = 512

// ErrEmptyPatientID is wrapped by the RequestError returned for an empty id.
var ErrEmptyPatientID = errors.New("patient id is required")

// RequestError reports any failed read against the FHIR server: an error
// status, a transport failure or an unparseable body. StatusCode is zero
// when no response was received.
type RequestError struct {
	StatusCode int
	Message    string
	Body       string
	// Outcome is set when an error response carried an OperationOutcome.
	Outcome *OperationOutcome
	Err     error
}

func (e *RequestError) Error() string {
	return "FHIR API request failed: " + e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func statusError(status int, body []byte) *RequestError {
	e := &RequestError{
		StatusCode: status,
		Body:       string(body),
	}

	e.Outcome = decodeOutcome(body)
	detail := e.Body
	if e.Outcome != nil && len(e.Outcome.Issue) > 0 {
		detail = e.Outcome.String()
	}

	e.Message = fmt.Sprintf("FHIR API error: %d", status)
	if detail != "" {
		e.Message += " - " + truncate(detail, maxBodyInMessage)
	}
	return e
}

// kindError reports a successful response holding another resource than the
// one requested. An OperationOutcome in its place is kept on the error.
func kindError(status int, body []byte, got, want ResourceType) *RequestError {
	e := &RequestError{
		StatusCode: status,
		Message:    fmt.Sprintf("unexpected resourceType %q, expected %q", got, want),
		Body:       string(body),
	}
	if got == ResourceTypeOperationOutcome {
		e.Outcome = decodeOutcome(body)
		if e.Outcome != nil && len(e.Outcome.Issue) > 0 {
			e.Message += " - " + truncate(e.Outcome.String(), maxBodyInMessage)
		}
	}
	return e
}

// decodeOutcome returns body as an OperationOutcome, or nil when it holds
// anything else.
func decodeOutcome(body []byte) *OperationOutcome {
	r, err := DecodeResource(body)
	if err != nil {
		return nil
	}
	outcome, _ := r.(*OperationOutcome)
	return outcome
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}

func transportError(err error) *RequestError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if msg == "" {
		msg = "unknown transport failure"
	}
	return &RequestError{Message: msg, Err: err}
}

func parseError(status int, body []byte, err error) *RequestError {
	return &RequestError{
		StatusCode: status,
		Message:    fmt.Sprintf("invalid JSON response: %v", err),
		Body:       string(body),
		Err:        err,
	}
}
