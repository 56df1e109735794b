package mcp

import (
	"context"

	"github.com/goccy/go-json"
)

// registerQueryTools wires the read/analytic tool surface.
func (s *Server) registerQueryTools() {
	s.reg.Register(Tool{
		Name:        "resolve_date_range",
		Description: "Resolve a natural-language date expression into {start, end}",
		Handler:     s.handleResolveDateRange,
	})
	s.reg.Register(Tool{
		Name:        "get_latest_news",
		Description: "Latest crawl batch, optionally filtered by platform",
		Handler:     s.handleGetLatestNews,
	})
	s.reg.Register(Tool{
		Name:        "get_news_by_date",
		Description: "Union of all items in a date range",
		Handler:     s.handleGetNewsByDate,
	})
	s.reg.Register(Tool{
		Name:        "get_trending_topics",
		Description: "Top keyword groups or auto-extracted tokens of today",
		Handler:     s.handleGetTrendingTopics,
	})
	s.reg.Register(Tool{
		Name:        "search_news",
		Description: "Keyword, fuzzy, or entity search over titles",
		Handler:     s.handleSearchNews,
	})
	s.reg.Register(Tool{
		Name:        "find_related_news",
		Description: "Titles similar to a reference title (bigram cosine)",
		Handler:     s.handleFindRelatedNews,
	})
	s.reg.Register(Tool{
		Name:        "analyze_topic_trend",
		Description: "Per-day mention counts of a topic over a range",
		Handler:     s.handleAnalyzeTopicTrend,
	})
	s.reg.Register(Tool{
		Name:        "analyze_data_insights",
		Description: "Volume and weight summary over a range",
		Handler:     s.handleAnalyzeDataInsights,
	})
	s.reg.Register(Tool{
		Name:        "analyze_sentiment",
		Description: "Lexicon-based sentiment histogram over matching items",
		Handler:     s.handleAnalyzeSentiment,
	})
	s.reg.Register(Tool{
		Name:        "aggregate_news",
		Description: "Cluster near-duplicate stories across platforms",
		Handler:     s.handleAggregateNews,
	})
	s.reg.Register(Tool{
		Name:        "compare_periods",
		Description: "Contrast two periods: overview, topic shifts, platform activity",
		Handler:     s.handleComparePeriods,
	})
	s.reg.Register(Tool{
		Name:        "generate_summary_report",
		Description: "Markdown/JSON bundle of the frequency analysis",
		Handler:     s.handleGenerateSummaryReport,
	})
}

func (s *Server) handleResolveDateRange(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	var args struct {
		Expression DateRangeArg `json:"expression"`
	}
	if err := decodeArgs(s.reg, raw, &args); err != nil {
		return nil, err
	}
	if args.Expression.IsZero() {
		return nil, InvalidArgument("expression is required")
	}
	r, err := s.resolveRange(args.Expression)
	if err != nil {
		return nil, err
	}
	return map[string]any{"range": r}, nil
}

func (s *Server) handleGetLatestNews(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	var args struct {
		Platforms  []string `json:"platforms"`
		Limit      int      `json:"limit" validate:"omitempty,min=1,max=1000"`
		IncludeURL bool     `json:"include_url"`
	}
	if err := decodeArgs(s.reg, raw, &args); err != nil {
		return nil, err
	}
	items, crawlTime, err := s.svc.GetLatestNews(ctx, args.Platforms, args.Limit, args.IncludeURL)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"crawl_time": crawlTime,
		"total":      len(items),
		"items":      items,
	}, nil
}

func (s *Server) handleGetNewsByDate(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	var args struct {
		DateRange  DateRangeArg `json:"date_range"`
		Platforms  []string     `json:"platforms"`
		Limit      int          `json:"limit" validate:"omitempty,min=1,max=1000"`
		IncludeURL bool         `json:"include_url"`
	}
	if err := decodeArgs(s.reg, raw, &args); err != nil {
		return nil, err
	}
	r, err := s.resolveRange(args.DateRange)
	if err != nil {
		return nil, err
	}
	if r.Start == "" {
		if r, err = s.svc.ResolveRange("today"); err != nil {
			return nil, err
		}
	}
	items, err := s.svc.GetNewsByDate(ctx, r, args.Platforms, args.Limit, args.IncludeURL)
	if err != nil {
		return nil, err
	}
	return map[string]any{"range": r, "total": len(items), "items": items}, nil
}

func (s *Server) handleGetTrendingTopics(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	var args struct {
		TopN        int    `json:"top_n" validate:"omitempty,min=1,max=100"`
		Mode        string `json:"mode" validate:"omitempty,oneof=daily current"`
		ExtractMode string `json:"extract_mode" validate:"omitempty,oneof=keywords auto_extract"`
	}
	if err := decodeArgs(s.reg, raw, &args); err != nil {
		return nil, err
	}
	topics, err := s.svc.GetTrendingTopics(ctx, args.TopN, args.Mode, args.ExtractMode)
	if err != nil {
		return nil, err
	}
	return map[string]any{"topics": topics}, nil
}

func (s *Server) handleSearchNews(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	var args struct {
		Query      string       `json:"query" validate:"required"`
		SearchMode string       `json:"search_mode" validate:"omitempty,oneof=keyword fuzzy entity"`
		DateRange  DateRangeArg `json:"date_range"`
		Platforms  []string     `json:"platforms"`
		Limit      int          `json:"limit" validate:"omitempty,min=1,max=1000"`
		SortBy     string       `json:"sort_by" validate:"omitempty,oneof=relevance weight date"`
		Threshold  float64      `json:"threshold" validate:"omitempty,min=0,max=1"`
		IncludeURL bool         `json:"include_url"`
	}
	if err := decodeArgs(s.reg, raw, &args); err != nil {
		return nil, err
	}
	r, err := s.resolveRange(args.DateRange)
	if err != nil {
		return nil, err
	}
	hits, err := s.svc.SearchNews(ctx, args.Query, args.SearchMode, r, args.Platforms, args.Limit, args.SortBy, args.Threshold, args.IncludeURL)
	if err != nil {
		return nil, err
	}
	return map[string]any{"total": len(hits), "items": hits}, nil
}

func (s *Server) handleFindRelatedNews(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	var args struct {
		ReferenceTitle string       `json:"reference_title" validate:"required"`
		DateRange      DateRangeArg `json:"date_range"`
		Threshold      float64      `json:"threshold" validate:"omitempty,min=0,max=1"`
		Limit          int          `json:"limit" validate:"omitempty,min=1,max=100"`
	}
	if err := decodeArgs(s.reg, raw, &args); err != nil {
		return nil, err
	}
	r, err := s.resolveRange(args.DateRange)
	if err != nil {
		return nil, err
	}
	related, err := s.svc.FindRelatedNews(ctx, args.ReferenceTitle, r, args.Threshold, args.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"total": len(related), "items": related}, nil
}

func (s *Server) handleAnalyzeTopicTrend(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	var args struct {
		Topic       string       `json:"topic" validate:"required"`
		DateRange   DateRangeArg `json:"date_range"`
		Granularity string       `json:"granularity"`
	}
	if err := decodeArgs(s.reg, raw, &args); err != nil {
		return nil, err
	}
	r, err := s.resolveRange(args.DateRange)
	if err != nil {
		return nil, err
	}
	trend, err := s.svc.AnalyzeTopicTrend(ctx, args.Topic, r, args.Granularity)
	if err != nil {
		return nil, err
	}
	return map[string]any{"trend": trend}, nil
}

func (s *Server) handleAnalyzeDataInsights(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	var args struct {
		DateRange DateRangeArg `json:"date_range"`
	}
	if err := decodeArgs(s.reg, raw, &args); err != nil {
		return nil, err
	}
	r, err := s.resolveRange(args.DateRange)
	if err != nil {
		return nil, err
	}
	insights, err := s.svc.AnalyzeDataInsights(ctx, r)
	if err != nil {
		return nil, err
	}
	return map[string]any{"insights": insights}, nil
}

func (s *Server) handleAnalyzeSentiment(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	var args struct {
		Topic        string       `json:"topic"`
		Platforms    []string     `json:"platforms"`
		DateRange    DateRangeArg `json:"date_range"`
		Limit        int          `json:"limit" validate:"omitempty,min=1,max=100"`
		SortByWeight bool         `json:"sort_by_weight"`
		IncludeURL   bool         `json:"include_url"`
	}
	if err := decodeArgs(s.reg, raw, &args); err != nil {
		return nil, err
	}
	r, err := s.resolveRange(args.DateRange)
	if err != nil {
		return nil, err
	}
	result, err := s.svc.AnalyzeSentiment(ctx, args.Topic, args.Platforms, r, args.Limit, args.SortByWeight, args.IncludeURL)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"total":     len(result.Items),
		"items":     result.Items,
		"histogram": result.Histogram,
	}, nil
}

func (s *Server) handleAggregateNews(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	var args struct {
		DateRange           DateRangeArg `json:"date_range"`
		Platforms           []string     `json:"platforms"`
		SimilarityThreshold float64      `json:"similarity_threshold" validate:"omitempty,min=0.3,max=1"`
		Limit               int          `json:"limit" validate:"omitempty,min=1,max=100"`
		IncludeURL          bool         `json:"include_url"`
	}
	if err := decodeArgs(s.reg, raw, &args); err != nil {
		return nil, err
	}
	r, err := s.resolveRange(args.DateRange)
	if err != nil {
		return nil, err
	}
	clusters, err := s.svc.AggregateNews(ctx, r, args.Platforms, args.SimilarityThreshold, args.Limit, args.IncludeURL)
	if err != nil {
		return nil, err
	}
	return map[string]any{"total": len(clusters), "clusters": clusters}, nil
}

func (s *Server) handleComparePeriods(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	var args struct {
		Period1     DateRangeArg `json:"period1"`
		Period2     DateRangeArg `json:"period2"`
		Topic       string       `json:"topic"`
		CompareType string       `json:"compare_type" validate:"omitempty,oneof=overview topic_shift platform_activity"`
		Platforms   []string     `json:"platforms"`
		TopN        int          `json:"top_n" validate:"omitempty,min=1,max=50"`
	}
	if err := decodeArgs(s.reg, raw, &args); err != nil {
		return nil, err
	}
	if args.Period1.IsZero() || args.Period2.IsZero() {
		return nil, InvalidArgument("period1 and period2 are required")
	}
	p1, err := s.resolveRange(args.Period1)
	if err != nil {
		return nil, err
	}
	p2, err := s.resolveRange(args.Period2)
	if err != nil {
		return nil, err
	}
	cmp, err := s.svc.ComparePeriods(ctx, p1, p2, args.Topic, args.CompareType, args.Platforms, args.TopN)
	if err != nil {
		return nil, err
	}
	return map[string]any{"comparison": cmp}, nil
}

func (s *Server) handleGenerateSummaryReport(ctx context.Context, raw json.RawMessage) (map[string]any, error) {
	var args struct {
		ReportType string       `json:"report_type" validate:"omitempty,oneof=daily weekly"`
		DateRange  DateRangeArg `json:"date_range"`
	}
	if err := decodeArgs(s.reg, raw, &args); err != nil {
		return nil, err
	}
	if args.ReportType == "" {
		args.ReportType = "daily"
	}
	r, err := s.resolveRange(args.DateRange)
	if err != nil {
		return nil, err
	}
	report, err := s.svc.GenerateSummaryReport(ctx, args.ReportType, r)
	if err != nil {
		return nil, err
	}
	return map[string]any{"report": report}, nil
}
