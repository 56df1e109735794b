package mcp

import (
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"trendradar/internal/config"
	"trendradar/internal/crawler"
	"trendradar/internal/query"
	"trendradar/internal/util"
)

// Server owns the tool registry and the engine components behind it.
type Server struct {
	cfg     *config.Config
	svc     *query.Service
	fetcher crawler.Fetcher
	reg     *Registry
	log     *slog.Logger
}

var (
	instanceMu sync.Mutex
	instance   *Server
)

// Instance returns the process-wide server, constructing it on the first
// call. Construction is mutex-guarded: the HTTP transport dispatches
// concurrently and must not race a half-built registry.
func Instance(cfg *config.Config, svc *query.Service, fetcher crawler.Fetcher, log *slog.Logger) *Server {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance == nil {
		instance = newServer(cfg, svc, fetcher, log)
	}
	return instance
}

// ResetInstance drops the singleton. Test hook.
func ResetInstance() {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	instance = nil
}

func newServer(cfg *config.Config, svc *query.Service, fetcher crawler.Fetcher, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		fetcher: fetcher,
		reg:     NewRegistry(log),
		log:     log,
	}
	s.registerQueryTools()
	s.registerSystemTools()
	return s
}

// Registry exposes the dispatcher (for transports and tests).
func (s *Server) Registry() *Registry { return s.reg }

// DateRangeArg accepts a date_range argument as either a natural-language
// string ("last 7 days", "本周", "2025-11-26") or a {start, end} object.
type DateRangeArg struct {
	raw json.RawMessage
}

// UnmarshalJSON keeps the raw form for later resolution.
func (d *DateRangeArg) UnmarshalJSON(b []byte) error {
	d.raw = append(d.raw[:0], b...)
	return nil
}

// IsZero reports whether the argument was omitted.
func (d DateRangeArg) IsZero() bool {
	return len(d.raw) == 0 || string(d.raw) == "null"
}

// resolveRange canonicalizes a DateRangeArg to the object form. An omitted
// argument yields the zero range (handlers default it to today).
func (s *Server) resolveRange(arg DateRangeArg) (util.DateRange, error) {
	if arg.IsZero() {
		return util.DateRange{}, nil
	}
	if arg.raw[0] == '"' {
		var expr string
		if err := json.Unmarshal(arg.raw, &expr); err != nil {
			return util.DateRange{}, InvalidArgument("malformed date_range: %v", err)
		}
		r, err := s.svc.ResolveRange(expr)
		if err != nil {
			return util.DateRange{}, InvalidArgument("%v", err)
		}
		return r, nil
	}

	var r util.DateRange
	if err := json.Unmarshal(arg.raw, &r); err != nil {
		return util.DateRange{}, InvalidArgument("malformed date_range: %v", err)
	}
	for _, d := range []string{r.Start, r.End} {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return util.DateRange{}, InvalidArgument("invalid date %q in date_range", d)
		}
	}
	if r.End < r.Start {
		return util.DateRange{}, InvalidArgument("date_range end %s before start %s", r.End, r.Start)
	}
	return r, nil
}
