package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// Request is one tool invocation frame.
type Request struct {
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Handler executes one tool. The returned map is merged into the success
// envelope.
type Handler func(ctx context.Context, args json.RawMessage) (map[string]any, error)

// Tool pairs a handler with its metadata.
type Tool struct {
	Name        string
	Description string
	Handler     Handler
}

// Registry routes requests to named tools and serializes responses.
type Registry struct {
	tools    map[string]Tool
	validate *validator.Validate
	log      *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		tools:    make(map[string]Tool),
		validate: validator.New(),
		log:      log,
	}
}

// Register adds a tool. Later registrations with the same name win.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name] = t
}

// Names lists registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch routes one request and returns the serialized JSON envelope.
// pretty selects indented output (HTTP); the stdio transport needs
// single-line frames.
func (r *Registry) Dispatch(ctx context.Context, req Request, pretty bool) []byte {
	result, err := r.call(ctx, req)
	if err != nil {
		te := classify(err)
		r.log.Warn("tool failed", "tool", req.ToolName, "code", te.Code, "error", te.Message)
		return marshal(map[string]any{"success": false, "error": te}, pretty)
	}
	if result == nil {
		result = map[string]any{}
	}
	result["success"] = true
	return marshal(result, pretty)
}

func (r *Registry) call(ctx context.Context, req Request) (result map[string]any, err error) {
	tool, ok := r.tools[req.ToolName]
	if !ok {
		return nil, InvalidArgument("unknown tool %q", req.ToolName)
	}

	// A handler panic must surface as INTERNAL_ERROR, not kill the
	// transport.
	defer func() {
		if rec := recover(); rec != nil {
			err = &ToolError{
				Code:    CodeInternalError,
				Message: fmt.Sprintf("panic: %v", rec),
				Details: string(debug.Stack()),
			}
		}
	}()

	return tool.Handler(ctx, req.Arguments)
}

// decodeArgs unmarshals and validates a tool's argument struct.
func decodeArgs[T any](r *Registry, raw json.RawMessage, args *T) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, args); err != nil {
			return InvalidArgument("malformed arguments: %v", err)
		}
	}
	if err := r.validate.Struct(args); err != nil {
		return InvalidArgument("invalid arguments: %v", err)
	}
	return nil
}

func marshal(v any, pretty bool) []byte {
	var data []byte
	var err error
	if pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		// Marshalling the envelope itself failed; emit a minimal error.
		return []byte(`{"success":false,"error":{"code":"INTERNAL_ERROR","message":"response serialization failed"}}`)
	}
	return data
}
