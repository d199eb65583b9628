// Package confirmation reads the confirmation document returned after a
// submission. The document is meant for people: per-guest outcomes are only
// recoverable from its printed layout.
package confirmation

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/ubysync/ubysync/internal/models"
)

// word matches one letter, digit or underscore in any script.
const word = `[\p{L}\p{N}_]`

var (
	totalRe    = regexp.MustCompile(`Celkový počet záznamů:\s*(\d+)`)
	acceptedRe = regexp.MustCompile(`Počet přijatých záznamů:\s*(\d+)`)
	rejectedRe = regexp.MustCompile(`Seznam nepřijatých záznamů:\s*(\d+)`)

	rejectedSectionRe = regexp.MustCompile(`(?is)SEZNAM\s*NEP` + word + `IJAT` + word + `CH\s*Z` + word + `ZNAM` + word +
		`(.*?)(?:POKRA` + word + `OV` + word + `N` + word + `|SEZNAM\s*P` + word + `IJAT` + word + `CH|KONEC)`)
	acceptedSectionRe = regexp.MustCompile(`(?is)SEZNAM\s*P` + word + `IJAT` + word + `CH\s*Z` + word + `ZNAM` + word + `(.*?)(?:KONEC|\z)`)

	// An entry is a numbered ERR line, a "SURNAME | FIRST | ..." line and a
	// line ending with "ERR: <reason>". Name columns keep hyphens,
	// apostrophes and inner spaces.
	entryRe = regexp.MustCompile(`(?s)(\d+)\s*ERR:.*?\n[ \t]*([^|\n]+?)[ \t]*\|[ \t]*([^|\n]+?)[ \t]*\|.*?\n.*?ERR:\s*([^\n]+)`)
)

// reasonFixes repairs known typos in rejected-section reasons.
var reasonFixes = strings.NewReplacer("číslocestovního", "číslo cestovního")

type RejectedEntry struct {
	Surname   string
	FirstName string
	Reason    string
	// FromAccepted marks entries listed as accepted but flagged with an error.
	FromAccepted bool
}

func (e RejectedEntry) Key() string {
	return models.CompositeKey(e.Surname, e.FirstName)
}

// Document is the structured content of a confirmation document.
type Document struct {
	Total    int
	Accepted int
	Rejected int
	Entries  []RejectedEntry
}

// Lookup finds a rejected entry by composite key.
func (d Document) Lookup(key string) (RejectedEntry, bool) {
	for _, e := range d.Entries {
		if e.Key() == key {
			return e, true
		}
	}
	return RejectedEntry{}, false
}

// Parse never fails: text it cannot read yields a zero Document.
func Parse(text string) Document {
	text = norm.NFC.String(strings.ReplaceAll(text, "\r\n", "\n"))

	total, ok1 := count(totalRe, text)
	accepted, ok2 := count(acceptedRe, text)
	rejected, ok3 := count(rejectedRe, text)
	if !ok1 || !ok2 || !ok3 {
		slog.Warn("confirmation counts unreadable")
		return Document{}
	}

	doc := Document{Total: total, Accepted: accepted, Rejected: rejected}

	if rejected > 0 {
		if m := rejectedSectionRe.FindStringSubmatch(text); m != nil {
			doc.Entries = append(doc.Entries, entries(m[1], false)...)
		}
	}

	if m := acceptedSectionRe.FindStringSubmatch(text); m != nil {
		flagged := entries(m[1], true)
		if len(flagged) > 0 {
			doc.Entries = append(doc.Entries, flagged...)
			doc.Accepted = max(0, doc.Accepted-len(flagged))
			doc.Rejected += len(flagged)
		}
	}

	doc.Entries = dedupe(doc.Entries)
	return doc
}

// count returns 0 when the label is absent; false only when a present
// number cannot be read.
func count(re *regexp.Regexp, text string) (int, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, true
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func entries(section string, fromAccepted bool) []RejectedEntry {
	var out []RejectedEntry
	for _, m := range entryRe.FindAllStringSubmatch(section, -1) {
		surname := strings.TrimSpace(m[2])
		first := strings.TrimSpace(m[3])
		if isHeader(surname, first) {
			continue
		}
		reason := strings.TrimSpace(m[4])
		if !fromAccepted {
			reason = reasonFixes.Replace(reason)
		}
		out = append(out, RejectedEntry{
			Surname:      surname,
			FirstName:    first,
			Reason:       reason,
			FromAccepted: fromAccepted,
		})
	}
	return out
}

func isHeader(surname, first string) bool {
	return strings.ToLower(surname) == "příjmení" || strings.ToLower(first) == "jméno"
}

func dedupe(in []RejectedEntry) []RejectedEntry {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, e := range in {
		k := e.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}
