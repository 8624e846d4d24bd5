// ABOUTME: Conversation handles: live thread ids and locally synthesized fallbacks
// ABOUTME: Fallback handles carry a reserved prefix so degraded mode is detectable offline

package conversation

import (
	"fmt"
	"strings"
	"time"
)

// FallbackPrefix marks handles synthesized locally when no thread could be created.
const FallbackPrefix = "fallback_"

// Handle identifies a conversation on the remote service, or a fallback.
type Handle string

// FallbackHandle builds the fallback handle for a user at the given time.
func FallbackHandle(userID string, now time.Time) Handle {
	return Handle(fmt.Sprintf("%s%s_%d", FallbackPrefix, userID, now.Unix()))
}

// IsFallback reports whether h was synthesized locally.
func (h Handle) IsFallback() bool {
	return strings.HasPrefix(string(h), FallbackPrefix)
}

func (h Handle) String() string {
	return string(h)
}
