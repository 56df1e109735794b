// Package mcp exposes the engine as a registry of named tools speaking a
// JSON request/response envelope over stdio or HTTP.
package mcp

import (
	"errors"
	"fmt"

	"trendradar/internal/query"
)

// Error codes of the tool envelope.
const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeDataNotFound    = "DATA_NOT_FOUND"
	CodeFileParseError  = "FILE_PARSE_ERROR"
	CodeCrawlTaskError  = "CRAWL_TASK_ERROR"
	CodeInternalError   = "INTERNAL_ERROR"
)

// ToolError is an error with a wire code. Handlers return it when they can
// classify a failure; everything else becomes INTERNAL_ERROR.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *ToolError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// InvalidArgument builds an INVALID_ARGUMENT error.
func InvalidArgument(format string, args ...any) *ToolError {
	return &ToolError{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// classify maps an arbitrary handler error onto the wire taxonomy.
func classify(err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	var nf *query.ErrNotFound
	if errors.As(err, &nf) {
		return &ToolError{Code: CodeDataNotFound, Message: nf.Error()}
	}
	return &ToolError{Code: CodeInternalError, Message: err.Error()}
}
