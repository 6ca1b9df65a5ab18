package util

import (
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

// ulidSource serializes reads of the monotonic entropy source, which is not
// safe for concurrent use.
var ulidSource = struct {
	sync.Mutex
	entropy io.Reader
}{
	entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
}

// NewULID returns a lexicographically sortable unique id. Used for suite run
// ids and for task ids minted by the in-memory queue; sortability keeps queue
// listings in submission order.
func NewULID() string {
	ulidSource.Lock()
	defer ulidSource.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Now(), ulidSource.entropy).String())
}
