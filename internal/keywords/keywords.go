// Package keywords loads the grouped keyword rule file and matches titles
// against it.
//
// The rule file is UTF-8 text. Blank lines separate groups; a group may
// start with a [WORD_GROUPS] or [GLOBAL_FILTER] marker that switches the
// active section. Inside a word group, one token per line (or several
// separated by commas):
//
//	+word   required word (all must be substrings)
//	!word   group filter word (also joins the shared filter set)
//	@N      cap on titles shown for this group
//	word    normal word (at least one must be a substring)
//
// Lines starting with # are comments. Inside [GLOBAL_FILTER] only bare
// words are read; prefixed tokens are ignored.
package keywords

import (
	"os"
	"strconv"
	"strings"
)

// Group is one keyword rule group.
type Group struct {
	Required []string
	Normal   []string
	Filters  []string
	GroupKey string
	MaxCount int // 0 = unlimited
}

// Rules is the parsed rule file.
type Rules struct {
	Groups        []Group
	FilterWords   []string // union of all group filter words
	GlobalFilters []string
}

// Load reads and parses the rule file. A missing file yields empty rules,
// not an error: no rules means "match everything".
func Load(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Rules{}, nil
		}
		return nil, err
	}
	return Parse(string(data)), nil
}

// Parse parses rule-file content. A section marker ends the current group
// in addition to switching sections, so markers work with or without a
// surrounding blank line.
func Parse(content string) *Rules {
	rules := &Rules{}
	section := "WORD_GROUPS"
	var block []string

	flush := func() {
		if len(block) == 0 {
			return
		}
		if section == "GLOBAL_FILTER" {
			for _, line := range block {
				if strings.HasPrefix(line, "!") || strings.HasPrefix(line, "+") || strings.HasPrefix(line, "@") {
					continue
				}
				rules.GlobalFilters = append(rules.GlobalFilters, line)
			}
		} else {
			rules.addGroup(block)
		}
		block = nil
	}

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "#"):
			// comment
		default:
			if name, ok := sectionMarker(line); ok {
				flush()
				if name == "GLOBAL_FILTER" || name == "WORD_GROUPS" {
					section = name
				}
				continue
			}
			block = append(block, line)
		}
	}
	flush()

	return rules
}

// addGroup parses one word-group block and appends it if it carries at
// least one required or normal word.
func (r *Rules) addGroup(lines []string) {
	var g Group
	for _, word := range tokens(lines) {
		switch {
		case strings.HasPrefix(word, "@"):
			if n, err := strconv.Atoi(word[1:]); err == nil && n > 0 {
				g.MaxCount = n
			}
		case strings.HasPrefix(word, "!"):
			g.Filters = append(g.Filters, word[1:])
			r.FilterWords = append(r.FilterWords, word[1:])
		case strings.HasPrefix(word, "+"):
			g.Required = append(g.Required, word[1:])
		default:
			g.Normal = append(g.Normal, word)
		}
	}

	if len(g.Required) == 0 && len(g.Normal) == 0 {
		return
	}
	if len(g.Normal) > 0 {
		g.GroupKey = strings.Join(g.Normal, " ")
	} else {
		g.GroupKey = strings.Join(g.Required, " ")
	}
	r.Groups = append(r.Groups, g)
}

// tokens flattens group lines into individual tokens: a line may carry a
// single token or several separated by commas (ASCII or fullwidth).
func tokens(lines []string) []string {
	var out []string
	for _, line := range lines {
		for _, tok := range strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == '，'
		}) {
			tok = strings.TrimSpace(tok)
			if tok != "" {
				out = append(out, tok)
			}
		}
	}
	return out
}

func sectionMarker(line string) (string, bool) {
	if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
		return strings.ToUpper(line[1 : len(line)-1]), true
	}
	return "", false
}

// Matches reports whether a title passes the rules at all.
func (r *Rules) Matches(title string) bool {
	_, ok := r.MatchGroup(title)
	return ok
}

// MatchGroup returns the index of the first group that claims the title.
// Global filters reject first; with no groups configured every title
// matches (index -1); shared filter words reject next; then groups are
// tried in declared order.
func (r *Rules) MatchGroup(title string) (int, bool) {
	title = strings.TrimSpace(title)
	if title == "" {
		return 0, false
	}
	lower := strings.ToLower(title)

	if containsAny(lower, r.GlobalFilters) {
		return 0, false
	}
	if len(r.Groups) == 0 {
		return -1, true
	}
	if containsAny(lower, r.FilterWords) {
		return 0, false
	}

	for i, g := range r.Groups {
		if !containsAll(lower, g.Required) {
			continue
		}
		if len(g.Normal) > 0 && !containsAny(lower, g.Normal) {
			continue
		}
		if containsAny(lower, g.Filters) {
			continue
		}
		return i, true
	}
	return 0, false
}

func containsAny(lower string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(lower, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

func containsAll(lower string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(lower, strings.ToLower(w)) {
			return false
		}
	}
	return true
}
