package contextwindow

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"

	"github.com/spoolhq/spool/pkg/chat"
)

// CacheKey computes a stable hash over the ordered (role, content) pairs of
// a message sequence. Identical sequences always yield identical keys and
// any change to a single message changes the key. Fields are length-prefixed
// so concatenation ambiguity cannot produce collisions. An empty sequence
// has no key: nothing to cache means nothing to match.
func CacheKey(messages []chat.ActiveMessage) string {
	if len(messages) == 0 {
		return ""
	}

	h := blake3.New()

	var n [8]byte
	write := func(s string) {
		binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}

	for _, m := range messages {
		write(string(m.Role))
		write(m.Content)
	}

	return hex.EncodeToString(h.Sum(nil))
}
