package models

import (
	"regexp"
	"strings"
)

// MaxSymbolsPerSubscriber caps how many symbols one subscriber may watch.
const MaxSymbolsPerSubscriber = 3

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{5,20}$`)

// NormalizeSymbol trims and uppercases s and reports whether the result is a valid symbol.
func NormalizeSymbol(s string) (string, bool) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	if !symbolPattern.MatchString(sym) {
		return "", false
	}
	return sym, true
}

// NormalizeSymbols drops invalid entries and duplicates, keeping first-seen order,
// and returns at most max symbols. A max <= 0 means no cap.
func NormalizeSymbols(in []string, max int) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		sym, ok := NormalizeSymbol(s)
		if !ok || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

// SplitSymbols splits a comma separated query value, ignoring blank entries.
func SplitSymbols(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
