package relay

import (
	"strings"
	"time"
)

// SafeName reduces an untrusted, channel-supplied filename to the allowed
// character set. Alphanumerics, space, dot, underscore and hyphen pass
// through; everything else becomes an underscore. Applying it twice yields
// the same result.
func SafeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// StampedName sanitizes name and inserts a second-granularity timestamp
// before the final extension. Names derived from the same input at the same
// second are identical.
func StampedName(name string, now time.Time) string {
	safe := SafeName(name)
	stamp := now.Format("20060102_150405")
	if idx := strings.LastIndex(safe, "."); idx > 0 {
		return safe[:idx] + "_" + stamp + safe[idx:]
	}
	return safe + "_" + stamp
}
