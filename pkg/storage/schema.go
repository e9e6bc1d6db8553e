package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

const maxSchemaNameBytes = 63

// SanitizeDIDForSchema derives a Postgres schema name from an agent DID:
// lowercase, replace every non-alphanumeric rune with '_', prefix
// "schema_" if the result would start with a digit, and if the result
// exceeds 63 bytes keep the first 54 bytes and append '_' plus the first 8
// hex digits of the sha256 of the full original (pre-truncation) name. The
// derivation is deterministic and collision-resistant for distinct DIDs.
func SanitizeDIDForSchema(did string) string {
	lowered := strings.ToLower(did)

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	sanitized := b.String()

	if sanitized != "" && unicode.IsDigit(rune(sanitized[0])) {
		sanitized = "schema_" + sanitized
	}

	if len(sanitized) <= maxSchemaNameBytes {
		return sanitized
	}

	sum := sha256.Sum256([]byte(did))
	suffix := hex.EncodeToString(sum[:])[:8]
	return sanitized[:54] + "_" + suffix
}
