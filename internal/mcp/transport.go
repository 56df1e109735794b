package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

// ServeStdio reads newline-delimited JSON request frames from r and writes
// one response frame per request to w. Frames are compact JSON: the
// newline is the frame delimiter, so responses must stay single-line.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req Request
		var resp []byte
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			resp = marshal(map[string]any{
				"success": false,
				"error":   InvalidArgument("malformed request frame: %v", err),
			}, false)
		} else {
			resp = s.reg.Dispatch(ctx, req, false)
		}

		if _, err := fmt.Fprintf(w, "%s\n", resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Handler returns the HTTP transport: POST /mcp with a request envelope,
// pretty-printed JSON back.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /mcp", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "reading body", http.StatusBadRequest)
			return
		}

		var req Request
		var resp []byte
		if err := json.Unmarshal(body, &req); err != nil {
			resp = marshal(map[string]any{
				"success": false,
				"error":   InvalidArgument("malformed request body: %v", err),
			}, true)
		} else {
			resp = s.reg.Dispatch(r.Context(), req, true)
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Write(resp)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// ListenAndServe runs the HTTP transport until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, host string, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: s.Handler(),
	}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()
	s.log.Info("http transport listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
