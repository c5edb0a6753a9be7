package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const fallbackMessage = "Something went wrong"

var (
	ErrMissingBaseURL = errors.New("api base url is required")
	ErrMissingMess    = errors.New("mess slug is required")
)

// Error is a non-2xx answer from the order service. Message is safe to
// show to the user.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

func (e *Error) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// IsUnauthorized reports whether err is an *Error with status 401.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Unauthorized()
}

// Message returns the user-facing text of err.
func Message(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return fallbackMessage
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// parseError reads detail[0].msg, then a plain detail string, then
// falls back to a generic message.
func parseError(status int, body []byte) *Error {
	e := &Error{Status: status, Message: fallbackMessage}

	var b errorBody
	if err := json.Unmarshal(body, &b); err != nil || len(b.Detail) == 0 {
		return e
	}

	var list []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(b.Detail, &list); err == nil {
		if len(list) > 0 && list[0].Msg != "" {
			e.Message = list[0].Msg
		}
		return e
	}

	var text string
	if err := json.Unmarshal(b.Detail, &text); err == nil && text != "" {
		e.Message = text
	}
	return e
}
