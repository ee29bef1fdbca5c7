package server

import (
	"errors"
	"fmt"
	"net/http"

	"chat-relay/internal/llm"
)

// ValidationError is a malformed or incomplete request body.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("field '%s' %s", e.Field, e.Reason)
}

// ConfigError is a missing process setting that makes every request fail.
type ConfigError struct {
	Var string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s is not set", e.Var)
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

const upstreamFailureMessage = "error processing request"

// envelope maps err to an HTTP status and the JSON body sent to the caller.
func envelope(err error) (int, errorResponse) {
	var ve *ValidationError
	var ce *ConfigError
	var ue *llm.UpstreamError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, errorResponse{Error: ve.Error()}
	case errors.As(err, &ce):
		return http.StatusInternalServerError, errorResponse{Error: ce.Error()}
	case errors.As(err, &ue):
		details := ue.Detail
		if details == "" {
			details = ue.Error()
		}
		return http.StatusInternalServerError, errorResponse{Error: upstreamFailureMessage, Details: details}
	default:
		return http.StatusInternalServerError, errorResponse{Error: upstreamFailureMessage, Details: err.Error()}
	}
}
