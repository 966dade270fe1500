package storage

import (
	crand "crypto/rand"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(crand.Reader, 0)
)

// NewKey returns a fresh blob key in the account's namespace:
// "<accountID>/<ULID><ext>".  ext includes the leading dot.  Nothing the
// client sent goes into the key.
func NewKey(accountID uint64, ext string) string {
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
	entropyMu.Unlock()
	return strconv.FormatUint(accountID, 10) + "/" + id + ext
}
