package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// TokenExpiredCode is the error code the backend uses for an expired session.
const TokenExpiredCode = "TOKEN_EXPIRED"

// APIError is a non-2xx response from the backend.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Code       string
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s %s: status %d (%s): %s", e.Method, e.Path, e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// TokenExpiredFunc recognizes a server-declared token expiry.
type TokenExpiredFunc func(*APIError) bool

// DefaultTokenExpired matches the TOKEN_EXPIRED error code.
func DefaultTokenExpired(e *APIError) bool {
	return e != nil && strings.EqualFold(e.Code, TokenExpiredCode)
}

// newAPIError builds an APIError, extracting code and message from the common
// backend error bodies: {"code","message"}, {"error_code","detail"},
// {"error":"..."} and {"error":{"code","message"}}.
func newAPIError(req *Request, resp *Response) *APIError {
	apiErr := &APIError{
		Method:     req.Method,
		Path:       req.Path,
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
	}

	var payload struct {
		Code      string          `json:"code"`
		ErrorCode string          `json:"error_code"`
		Message   string          `json:"message"`
		Detail    string          `json:"detail"`
		Error     json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(preview(resp.Body))
		return apiErr
	}

	apiErr.Code = firstNonEmpty(payload.Code, payload.ErrorCode)
	apiErr.Message = firstNonEmpty(payload.Message, payload.Detail)

	if len(payload.Error) > 0 {
		var s string
		var nested struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		switch {
		case json.Unmarshal(payload.Error, &s) == nil:
			apiErr.Message = firstNonEmpty(apiErr.Message, s)
		case json.Unmarshal(payload.Error, &nested) == nil:
			apiErr.Code = firstNonEmpty(apiErr.Code, nested.Code)
			apiErr.Message = firstNonEmpty(apiErr.Message, nested.Message)
		}
	}
	return apiErr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
