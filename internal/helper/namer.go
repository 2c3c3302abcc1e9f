package helper

import (
	"path/filepath"
	"strings"
)

const fallbackPrefix = "doc_"

var documentSuffixes = []string{".pdf", ".docx", ".pptx", ".xlsx", ".xlsm", ".xltx", ".txt", ".markdown", ".md"}

// CollectionName derives a collection name from an uploaded filename.
// The result is lowercase, holds only [a-z0-9_] and starts with a letter or underscore.
// A name with no usable characters becomes a fresh "doc_" token, so it is never empty.
func CollectionName(filename string) string {
	name := strings.ToLower(filepath.Base(strings.TrimSpace(filename)))
	for _, suffix := range documentSuffixes {
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}

	var b strings.Builder
	for _, r := range name {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	name = b.String()

	if strings.Trim(name, "_") == "" {
		return fallbackPrefix + ShortToken(8)
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = fallbackPrefix + name
	}
	return name
}

// ResolveCollection returns the explicit name verbatim when set, otherwise derives one from filename.
func ResolveCollection(explicit, filename string) string {
	if explicit != "" {
		return explicit
	}
	return CollectionName(filename)
}
