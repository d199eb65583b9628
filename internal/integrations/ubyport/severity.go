package ubyport

import "strings"

// SeverityRules classifies service error codes. A code is fatal when it
// starts with one of FatalPrefixes; everything else is advisory.
type SeverityRules struct {
	FatalPrefixes []string
}

func DefaultSeverityRules() SeverityRules {
	return SeverityRules{FatalPrefixes: []string{"1"}}
}

func (r SeverityRules) IsFatal(code string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}
	for _, p := range r.FatalPrefixes {
		if p != "" && strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

// FatalCodes returns the fatal codes of a semicolon-delimited error text.
func (r SeverityRules) FatalCodes(text string) []string {
	var out []string
	for _, c := range strings.Split(text, ";") {
		if r.IsFatal(c) {
			out = append(out, strings.TrimSpace(c))
		}
	}
	return out
}

// Success reports whether neither the header nor any record error string
// carries a fatal code.
func (r SeverityRules) Success(header string, records []string) bool {
	if len(r.FatalCodes(header)) > 0 {
		return false
	}
	for _, rec := range records {
		if len(r.FatalCodes(rec)) > 0 {
			return false
		}
	}
	return true
}
