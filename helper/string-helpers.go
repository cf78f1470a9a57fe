package helper

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
)

// CsvToStringSliceTrimSpaces converts a string of the form, 'f1,f2,f3...' into a slice of string values.
// Leading and trailing spaces are removed and empty tokens are dropped.
func CsvToStringSliceTrimSpaces(s string) []string {
	retval := make([]string, 0)
	for _, t := range strings.Split(s, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			retval = append(retval, t)
		}
	}
	return retval
}

// GetTrueFalseStringAsBool trims spaces from s and checks if it can regexp (case insensitive) match "true".
// It returns true if there's a match else false.
func GetTrueFalseStringAsBool(s string) bool {
	re := regexp.MustCompile("(?i)^(true|1|yes)$")
	return re.MatchString(strings.TrimSpace(s))
}

// Split returns t, u when s is of the form t c u, else s, "".
func Split(s string, c string) (string, string) {
	i := strings.Index(s, c)
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+len(c):]
}

// SplitRight is like Split but uses the last occurrence of c.
func SplitRight(s string, c string) (string, string) {
	i := strings.LastIndex(s, c)
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+len(c):]
}

// QuoteIdentifier wraps s in double quotes, doubling any embedded quotes.
func QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// QuoteLiteral wraps s in single quotes, doubling any embedded quotes.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// ToUpperQuotedIfNotQuoted converts any non-quoted strings to upper case and quotes them.
func ToUpperQuotedIfNotQuoted(s []string) []string {
	re := regexp.MustCompile("^\"(.+)\"$")
	retval := make([]string, len(s))
	for idx, v := range s {
		if !re.MatchString(v) { // if the column name is NOT quoted...
			retval[idx] = fmt.Sprintf("%q", strings.ToUpper(v)) // convert to uppercase and quote it.
		} else {
			retval[idx] = v
		}
	}
	return retval
}

// AtomBool is a bool that is safe for concurrent use.
type AtomBool struct {
	flag int32
}

func (b *AtomBool) Set(value bool) {
	var i int32 = 0
	if value {
		i = 1
	}
	atomic.StoreInt32(&b.flag, i)
}

func (b *AtomBool) Get() bool {
	return atomic.LoadInt32(&b.flag) != 0
}
