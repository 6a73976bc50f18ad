package content

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// CreateSchemaHash computes the stable content digest over (type, data)
// that spec.md §3/§8 requires: deterministic, and any change in either
// input changes the hash with overwhelming probability.
func CreateSchemaHash(typ string, data []byte) string {
	d := xxhash.New()
	_, _ = d.Write([]byte(typ))
	_, _ = d.Write([]byte{0}) // separator so ("ab","c") != ("a","bc")
	_, _ = d.Write(data)
	return strconv.FormatUint(d.Sum64(), 16)
}
