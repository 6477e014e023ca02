package cache

import (
	"fmt"
	"strings"
)

// GenerateKeyWithParams joins params onto prefix with ':'. An empty prefix
// yields just the joined params.
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	parts := make([]string, 0, len(params)+1)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	for _, p := range params {
		parts = append(parts, fmt.Sprint(p))
	}
	return strings.Join(parts, ":")
}

func BuildPattern(prefix string) string {
	return prefix + "*"
}
