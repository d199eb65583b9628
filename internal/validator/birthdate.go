package validator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// NormalizeBirthDate turns a birth date cell into the 8-digit DDMMYYYY form
// the registration service expects.
//
// Accepted final forms:
//   - DDMMYYYY with day 1..31 and month 1..12
//   - 0000YYYY when day and month are unknown
//   - 00MMYYYY with MM 1..31 when only part of the date is known
//
// A 7-digit value gets a leading zero back (spreadsheets drop it).
func NormalizeBirthDate(value any) (string, bool) {
	var s string
	switch v := value.(type) {
	case nil:
		return "", false
	case time.Time:
		if v.IsZero() {
			return "", false
		}
		s = v.Format("02012006")
	case int:
		s = fmt.Sprintf("%08d", v)
	case int64:
		s = fmt.Sprintf("%08d", v)
	case float64:
		if math.IsNaN(v) || v < 0 {
			return "", false
		}
		s = fmt.Sprintf("%08d", int64(v))
	case string:
		s = strings.ReplaceAll(strings.TrimSpace(v), " ", "")
		s = strings.NewReplacer(".", "", "-", "", "/", "").Replace(s)
	default:
		return "", false
	}

	if s == "" || !isDigits(s) {
		return "", false
	}
	if len(s) == 7 {
		s = "0" + s
	}
	if len(s) != 8 {
		return "", false
	}
	if !birthDateShapeOK(s) {
		return "", false
	}
	return s, true
}

func birthDateShapeOK(s string) bool {
	day, _ := strconv.Atoi(s[:2])
	month, _ := strconv.Atoi(s[2:4])

	switch {
	case day == 0 && month == 0:
		return true
	case day == 0 && month >= 1 && month <= 31:
		return true
	case day >= 1 && day <= 31 && month >= 1 && month <= 12:
		return true
	}
	return false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
