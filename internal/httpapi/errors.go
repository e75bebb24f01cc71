package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spigell/career-match/internal/chat"
	"github.com/spigell/career-match/internal/search"
)

const (
	codeInvalidRequest = "invalid_request"
	codeUpstream       = "upstream_unavailable"
	codeAssistant      = "assistant_unavailable"
	codeTimeout        = "timeout"
	codeInternal       = "internal"
)

// APIError is the body of every error response.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type errorResponse struct {
	Error APIError `json:"error"`
}

func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: APIError{
		Code:      code,
		Message:   message,
		RequestID: c.GetString(requestIDKey),
	}})
}

// classify maps a service error to a status code and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrInvalidSession):
		return http.StatusBadRequest, codeInvalidRequest
	case errors.Is(err, search.ErrUpstream):
		return http.StatusBadGateway, codeUpstream
	case errors.Is(err, chat.ErrAssistant):
		return http.StatusBadGateway, codeAssistant
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, codeTimeout
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	status, code := classify(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	writeError(c, status, code, message)
}
