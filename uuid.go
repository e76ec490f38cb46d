package doctxn

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// NewUUID returns a new randomly generated UUID. It retries on error with a 1ms backoff up to 10 times
// and panics only if all attempts fail (which should never happen under normal conditions).
func NewUUID() uuid.UUID {
	var err error
	for i := 0; i < 10; i++ {
		var id uuid.UUID
		id, err = uuid.NewRandom()
		if err == nil {
			return id
		}
		time.Sleep(time.Duration(1 * time.Millisecond))
	}
	panic(err)
}

// NewHash returns 32 lower case hex characters, the shape CouchDB uses for revision
// hashes and generated document ids.
func NewHash() string {
	id := NewUUID()
	return hex.EncodeToString(id[:])
}
