package validator

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultCountryAliases maps country names seen in operator spreadsheets to
// ISO 3166-1 alpha-3 codes. Keys are folded (upper case, no diacritics).
var DefaultCountryAliases = map[string]string{
	"UKRAJINA":  "UKR",
	"UKRAINE":   "UKR",
	"UKRAINA":   "UKR",
	"SLOVENSKO": "SVK",
	"SLOVAKIA":  "SVK",
	"POLSKO":    "POL",
	"POLAND":    "POL",
	"NEMECKO":   "DEU",
	"GERMANY":   "DEU",
	"RUMUNSKO":  "ROU",
	"ROMANIA":   "ROU",
	"MADARSKO":  "HUN",
	"HUNGARY":   "HUN",
	"RAKOUSKO":  "AUT",
	"AUSTRIA":   "AUT",
}

// MergeCountryAliases returns DefaultCountryAliases overlaid with extra.
// Keys of extra are folded; on a clash extra wins.
func MergeCountryAliases(extra map[string]string) map[string]string {
	out := make(map[string]string, len(DefaultCountryAliases)+len(extra))
	for k, code := range DefaultCountryAliases {
		out[k] = code
	}
	for k, code := range extra {
		if key := fold(k); key != "" {
			out[key] = strings.ToUpper(code)
		}
	}
	return out
}

// DefaultHomeCountry lists spellings of the reporting country itself. Its
// citizens are not foreign guests and must never be reported.
var DefaultHomeCountry = []string{
	"CZE", "CZ", "CZK", "CZECH", "CZECHIA", "CZECH REPUBLIC",
	"CESKO", "CESKA REPUBLIKA",
}

// fold upper-cases s, strips diacritics and collapses separators to single spaces.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.ToUpper(out)
	out = strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', '.', ',':
			return ' '
		}
		return r
	}, out)
	return strings.Join(strings.Fields(out), " ")
}

func isAlpha3(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
