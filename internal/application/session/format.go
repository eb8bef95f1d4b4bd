package session

import "strings"

var friendlyMessages = []struct {
	match, text string
}{
	{"email already in use", "This email is already registered. Please sign in or use a different email."},
	{"weak password", "Please choose a stronger password with at least 6 characters."},
	{"invalid email", "Please enter a valid email address."},
	{"network error", "Network error. Please check your internet connection."},
}

// FormatErrorMessage rewrites known provider failures into user-facing text.
// Matching is a case-insensitive substring test; the first hit wins and
// anything unrecognised is returned unchanged.
func FormatErrorMessage(msg string) string {
	lower := strings.ToLower(msg)
	for _, m := range friendlyMessages {
		if strings.Contains(lower, m.match) {
			return m.text
		}
	}
	return msg
}
