package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateRange is an inclusive span of days in YYYY-MM-DD form.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Days expands the range into its member dates in ascending order.
func (r DateRange) Days(loc *time.Location) ([]string, error) {
	start, err := time.ParseInLocation("2006-01-02", r.Start, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid range start %q: %w", r.Start, err)
	}
	end, err := time.ParseInLocation("2006-01-02", r.End, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid range end %q: %w", r.End, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("range end %s before start %s", r.End, r.Start)
	}
	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format("2006-01-02"))
	}
	return days, nil
}

var (
	lastNDaysEnRe = regexp.MustCompile(`^last\s+(\d+)\s+days?$`)
	lastNDaysZhRe = regexp.MustCompile(`^最近(\d+)天$`)
	singleDateRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// ResolveDateExpr parses a natural-language date expression into an
// inclusive range, relative to now. Supported: today/今天, yesterday/昨天,
// this week/本周, last week/上周, this month/本月, last month/上月,
// last N days/最近N天, and a bare YYYY-MM-DD date. Weeks run Monday to
// Sunday.
func ResolveDateExpr(expr string, now time.Time) (DateRange, error) {
	const day = "2006-01-02"
	today := now.Format(day)
	e := strings.ToLower(strings.TrimSpace(expr))

	switch e {
	case "today", "今天":
		return DateRange{Start: today, End: today}, nil
	case "yesterday", "昨天":
		y := now.AddDate(0, 0, -1).Format(day)
		return DateRange{Start: y, End: y}, nil
	case "this week", "本周":
		monday := now.AddDate(0, 0, -mondayOffset(now))
		return DateRange{
			Start: monday.Format(day),
			End:   monday.AddDate(0, 0, 6).Format(day),
		}, nil
	case "last week", "上周":
		monday := now.AddDate(0, 0, -mondayOffset(now)-7)
		return DateRange{
			Start: monday.Format(day),
			End:   monday.AddDate(0, 0, 6).Format(day),
		}, nil
	case "this month", "本月":
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return DateRange{
			Start: first.Format(day),
			End:   first.AddDate(0, 1, -1).Format(day),
		}, nil
	case "last month", "上月":
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0)
		return DateRange{
			Start: first.Format(day),
			End:   first.AddDate(0, 1, -1).Format(day),
		}, nil
	}

	if m := lastNDaysEnRe.FindStringSubmatch(e); m != nil {
		return lastNDays(m[1], now)
	}
	if m := lastNDaysZhRe.FindStringSubmatch(strings.TrimSpace(expr)); m != nil {
		return lastNDays(m[1], now)
	}
	if singleDateRe.MatchString(e) {
		if _, err := time.Parse(day, e); err != nil {
			return DateRange{}, fmt.Errorf("invalid date %q", expr)
		}
		return DateRange{Start: e, End: e}, nil
	}

	return DateRange{}, fmt.Errorf("unrecognized date expression %q", expr)
}

func lastNDays(n string, now time.Time) (DateRange, error) {
	count, err := strconv.Atoi(n)
	if err != nil || count <= 0 {
		return DateRange{}, fmt.Errorf("invalid day count %q", n)
	}
	return DateRange{
		Start: now.AddDate(0, 0, -(count - 1)).Format("2006-01-02"),
		End:   now.Format("2006-01-02"),
	}, nil
}

// mondayOffset is the number of days since the most recent Monday.
func mondayOffset(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}
