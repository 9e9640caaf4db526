package ws

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// newConnID mints an opaque id for one websocket connection, used to
// correlate lifecycle events for the same socket.
func newConnID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("conn-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
