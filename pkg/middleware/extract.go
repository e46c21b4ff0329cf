package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// CustomerExtractor identifies the caller of a request. An empty result
// leaves the entry's customer unset.
type CustomerExtractor interface {
	CustomerID(r *http.Request) string
}

// ToolExtractor names the tool a request invoked. An empty result leaves the
// entry's tool unset.
type ToolExtractor interface {
	ToolName(r *http.Request) string
}

// ErrorClassifier decides the error type recorded for a status code.
// An empty result means the response is not an error.
type ErrorClassifier interface {
	ErrorType(statusCode int) string
}

// CustomerFunc adapts a function to CustomerExtractor.
type CustomerFunc func(r *http.Request) string

func (f CustomerFunc) CustomerID(r *http.Request) string { return f(r) }

// ToolFunc adapts a function to ToolExtractor.
type ToolFunc func(r *http.Request) string

func (f ToolFunc) ToolName(r *http.Request) string { return f(r) }

// HeaderCustomer reads the customer from a request header. The default
// header is X-Agent-ID, set by calling agents.
type HeaderCustomer struct {
	Header string
}

func (h HeaderCustomer) CustomerID(r *http.Request) string {
	name := h.Header
	if name == "" {
		name = "X-Agent-ID"
	}
	return strings.TrimSpace(r.Header.Get(name))
}

// PathTool uses the last non-empty path segment, e.g. /mcp/agent-19/chat -> chat.
type PathTool struct{}

func (PathTool) ToolName(r *http.Request) string {
	return lastSegment(r.URL.Path)
}

func lastSegment(path string) string {
	segments := strings.Split(path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return segments[i]
		}
	}
	return "unknown"
}

// BodyFieldTool reads a top-level string field of a JSON request body, as
// sent by A2A clients that route by skill_id. When the body has no such field
// it defers to Fallback (PathTool when nil). Only bodies with a declared
// Content-Length of at most MaxBytes (DefaultMaxBodySize when zero) are
// inspected; streamed or larger bodies go straight to the fallback. The body
// is restored for the handler.
type BodyFieldTool struct {
	Field    string
	Fallback ToolExtractor
	MaxBytes int
}

func (b BodyFieldTool) ToolName(r *http.Request) string {
	if name := b.fromBody(r); name != "" {
		return name
	}
	if b.Fallback != nil {
		return b.Fallback.ToolName(r)
	}
	return PathTool{}.ToolName(r)
}

func (b BodyFieldTool) fromBody(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	max := b.MaxBytes
	if max <= 0 {
		max = DefaultMaxBodySize
	}
	if r.ContentLength <= 0 || r.ContentLength > int64(max) {
		return ""
	}
	data, err := peekBody(r, r.ContentLength)
	if err != nil || len(data) == 0 {
		return ""
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return ""
	}
	field := b.Field
	if field == "" {
		field = "skill_id"
	}
	var value string
	if err := json.Unmarshal(fields[field], &value); err != nil {
		return ""
	}
	return value
}

// ServerErrors classifies 5xx responses as HTTP_<code>.
type ServerErrors struct{}

func (ServerErrors) ErrorType(statusCode int) string {
	if statusCode >= http.StatusInternalServerError {
		return fmt.Sprintf("HTTP_%d", statusCode)
	}
	return ""
}

// ClientAndServerErrors classifies both 4xx and 5xx responses.
type ClientAndServerErrors struct{}

func (ClientAndServerErrors) ErrorType(statusCode int) string {
	if statusCode >= http.StatusBadRequest {
		return fmt.Sprintf("HTTP_%d", statusCode)
	}
	return ""
}

