package types

import (
	"fmt"
	"strings"
)

// HeartbeatFrame is the single-byte text frame sent upstream every heartbeat
// interval while the link is open.
var HeartbeatFrame = []byte("c")

// ProxyUserAgent composes the user-agent string embedded in the join frame.
func ProxyUserAgent(platformUserID string) string {
	return fmt.Sprintf("YahooFantasyProxy/1.0 (%s)", platformUserID)
}

// JoinFrame builds the literal first text frame sent to the upstream after a
// successful handshake: 8|<leagueId>|<draftPosition>|<encoded user-agent>|
func JoinFrame(leagueID string, draftPosition int, userAgent string) []byte {
	return []byte(fmt.Sprintf("8|%s|%d|%s|", leagueID, draftPosition, EncodeURIComponent(userAgent)))
}

// EncodeURIComponent percent-encodes a string the way browsers do for URI
// components. The upstream expects exactly this alphabet: alphanumerics and
// !'()*-._~ pass through, everything else becomes %XX. Go's url.PathEscape
// escapes parentheses and url.QueryEscape turns spaces into '+', so neither
// matches the wire format.
func EncodeURIComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isURIComponentSafe(c) {
			b.WriteByte(c)
		} else {
			b.WriteString(fmt.Sprintf("%%%02X", c))
		}
	}
	return b.String()
}

func isURIComponentSafe(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '~', '!', '\'', '(', ')', '*':
		return true
	}
	return false
}
