package api

import "regexp"

const redactedPlaceholder = "[redacted]"

const secretWords = `password|passwd|secret|token|api[-_]?key|access[-_]?key|credentials?`

var (
	// --db-password=x, -token x
	secretFlagPattern = regexp.MustCompile(`(?i)(-{1,2}[\w.-]*(?:` + secretWords + `)[\w.-]*)(=|\s+)(["']?)([^"'\s-][^"'\s]*)(["']?)`)
	// DB_PASSWORD=x, api_key: x
	secretAssignPattern = regexp.MustCompile(`(?i)\b([\w.]*(?:` + secretWords + `)[\w.]*)(\s*[:=]\s*)(["']?)([^"'\s]+)(["']?)`)
)

// RedactCommandLine masks values passed to secret-looking flags and
// assignments so command lines can be reported without leaking credentials.
func RedactCommandLine(commandLine string) string {
	if commandLine == "" {
		return commandLine
	}
	redacted := secretFlagPattern.ReplaceAllString(commandLine, "$1$2$3"+redactedPlaceholder+"$5")
	return secretAssignPattern.ReplaceAllString(redacted, "$1$2$3"+redactedPlaceholder+"$5")
}
