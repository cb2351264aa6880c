package shortener

import (
	"regexp"
	"strings"
)

const defaultScheme = "https://"

// labels: alphanumeric, inner hyphens allowed, no leading/trailing hyphen.
const domainPattern = `([a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?\.)+[a-zA-Z]{2,24}`

var linkRe = regexp.MustCompile(`^(https?://)?(www\.)?` + domainPattern + `\b([-a-zA-Z0-9()@:%_+.~#?&/=]*)$`)

var idRe = regexp.MustCompile(`^[0-9a-f]{8}$`)

// Normalize 为没有 scheme 的输入补上 https://。
func Normalize(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return defaultScheme + raw
}

// Validate reports whether s looks like a web URL. It expects s to be
// normalized already; it does not parse the URL, it only matches the shape.
func Validate(s string) bool {
	return linkRe.MatchString(s)
}

// ValidID reports whether id has the shape of an identifier this service
// hands out.
func ValidID(id string) bool {
	return idRe.MatchString(id)
}
