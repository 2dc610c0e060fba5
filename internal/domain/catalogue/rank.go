package catalogue

import (
	"sort"
	"strings"
)

const (
	tierExact = iota
	tierKeyword
	tierCategory
	tierOtherCategory
)

// priorityNames breaks ties inside a tier; earlier names win.
var priorityNames = []string{
	"general physician",
	"general",
	"specialist",
	"emergency",
	"follow-up",
}

// Rank returns the active, billable entries matching c, best match first.
// The order is deterministic for a given catalogue.
func Rank(entries []*Entry, c Criteria) []*Entry {
	keywords := normalize(c.Keywords)

	type scored struct {
		entry    *Entry
		tier     int
		priority int
	}
	var candidates []scored
	for _, e := range entries {
		if !e.IsActive || !e.IsBillable {
			continue
		}
		t, ok := matchTier(e, c, keywords)
		if !ok {
			continue
		}
		candidates = append(candidates, scored{entry: e, tier: t, priority: namePriority(e.Name)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.tier != b.tier {
			return a.tier < b.tier
		}
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		if a.entry.Code != b.entry.Code {
			return a.entry.Code < b.entry.Code
		}
		return a.entry.ID < b.entry.ID
	})

	ranked := make([]*Entry, len(candidates))
	for i, s := range candidates {
		ranked[i] = s.entry
	}
	return ranked
}

func matchTier(e *Entry, c Criteria, keywords []string) (int, bool) {
	inCategory := c.Category != "" && strings.EqualFold(e.Category, c.Category)
	exact, partial := keywordMatch(e, keywords)

	switch {
	case inCategory && exact:
		return tierExact, true
	case inCategory && partial:
		return tierKeyword, true
	case inCategory && c.AllowCategoryOnly:
		return tierCategory, true
	case exact || partial:
		return tierOtherCategory, true
	}
	return 0, false
}

func keywordMatch(e *Entry, keywords []string) (exact, partial bool) {
	name := strings.ToLower(e.Name)
	code := strings.ToLower(e.Code)
	desc := ""
	if e.Description != nil {
		desc = strings.ToLower(*e.Description)
	}

	for _, kw := range keywords {
		if name == kw || code == kw {
			return true, true
		}
		if strings.Contains(name, kw) || strings.Contains(code, kw) || strings.Contains(desc, kw) {
			partial = true
		}
	}
	return false, partial
}

// namePriority matches on the start of the name only, so "Specialist
// General Physician Review" ranks as a specialist entry.
func namePriority(name string) int {
	lower := strings.ToLower(strings.TrimSpace(name))
	for i, p := range priorityNames {
		if strings.HasPrefix(lower, p) {
			return i
		}
	}
	return len(priorityNames)
}

func normalize(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
