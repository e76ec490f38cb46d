package doctxn

import (
	"strconv"
	"strings"
)

// NextRev returns the revision following rev in CouchDB's "N-hash" form: the generation
// is incremented and the hash is new. An empty rev yields generation 1.
func NextRev(rev string) string {
	return strconv.Itoa(RevGeneration(rev)+1) + "-" + NewHash()
}

// RevGeneration returns N of an "N-hash" revision, 0 when rev is empty or malformed.
func RevGeneration(rev string) int {
	i := strings.IndexByte(rev, '-')
	if i <= 0 {
		return 0
	}
	n, _ := strconv.Atoi(rev[:i])
	return n
}
