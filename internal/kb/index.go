package kb

import (
	"fmt"
	"strings"
)

// IndexName derives the backing index name for a knowledge base from the
// configured prefix, the source kind, and a sanitized suffix. It is a
// pure function: once derived for a knowledge base the result is stored
// and never recomputed.
func IndexName(prefix string, kind SourceKind, suffix string) string {
	return fmt.Sprintf("%s-%s.%s", prefix, kind, suffix)
}

// IndexPattern matches every index owned by the given prefix.
func IndexPattern(prefix string) string {
	return prefix + "-*"
}

// SanitizeSuffix turns a host+path fragment into a stable index-name
// suffix: dots and colons in the host become underscores, path
// separators become dots, hyphens become underscores, and anything else
// outside [a-z0-9_.-] is dropped. The result is capped at 50 bytes,
// trimmed of edge separators, and lowercased, so the same source always
// yields the same suffix.
func SanitizeSuffix(hostPath string) string {
	hostPath = strings.TrimPrefix(hostPath, "https://")
	hostPath = strings.TrimPrefix(hostPath, "http://")
	replaced := strings.NewReplacer(".", "_", ":", "_", "/", ".", "-", "_").Replace(hostPath)

	var b strings.Builder
	for _, r := range replaced {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '-' || r == '.':
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > 50 {
		s = s[:50]
	}
	return strings.ToLower(strings.Trim(s, "-_."))
}
