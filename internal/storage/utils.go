package storage

import (
	"strings"
)

func redactQuery(rawURL string) string {
	trimmed, _, _ := strings.Cut(rawURL, "?")
	return trimmed
}
