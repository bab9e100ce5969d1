// Package detect watches source listings for new or changed documents.
// Pages are reduced to a content fingerprint that ignores the parts portals
// churn on every render, so a hash change means the listing itself changed.
package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	scriptRe   = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	styleRe    = regexp.MustCompile(`(?is)<style\b.*?</style>`)
	commentRe  = regexp.MustCompile(`(?s)<!--.*?-->`)
	volatileRe = regexp.MustCompile(`(?i)\s[\w-]*(?:csrf|nonce|token|session|timestamp)[\w-]*\s*=\s*"[^"]*"`)
	wsRe       = regexp.MustCompile(`\s+`)
)

// ContentHash fingerprints listing HTML: scripts, styles, comments and
// per-render attributes (CSRF tokens, nonces, session ids, timestamps) are
// stripped and whitespace collapsed before hashing.
func ContentHash(html string) string {
	s := scriptRe.ReplaceAllString(html, "")
	s = styleRe.ReplaceAllString(s, "")
	s = commentRe.ReplaceAllString(s, "")
	s = volatileRe.ReplaceAllString(s, "")
	s = wsRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
