package logger

import (
	"strings"
	"unicode/utf8"
)

// RedactEmail keeps the first two characters of the local part and the
// domain: "john.doe@example.com" becomes "jo***@example.com". Local parts of
// two characters or fewer are masked entirely. Input without an "@" yields
// "***@***".
func RedactEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return "***@***"
	}
	local, domain := email[:at], email[at+1:]
	if utf8.RuneCountInString(local) <= 2 {
		return "***@" + domain
	}
	_, first := utf8.DecodeRuneInString(local)
	_, second := utf8.DecodeRuneInString(local[first:])
	return local[:first+second] + "***@" + domain
}
