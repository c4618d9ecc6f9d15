package connect

import "strings"

const redacted = "***REDACTED***"

// redactEmail keeps the domain and first letter: p***@example.com
func redactEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return redacted
	}
	return email[:1] + "***" + email[at:]
}
