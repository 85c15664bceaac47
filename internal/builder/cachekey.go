package builder

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/specialistvlad/datasetgo/internal/recipe"
)

// cacheKeyLen is the number of hex characters of the digest kept in file
// names. Collisions at this length are not a practical concern for a
// per-project catalog.
const cacheKeyLen = 12

// CacheKey derives the cache identifier for a dataset from its name and the
// recipe's declared source hashes. Changing any declared hash changes the
// key, which invalidates previously cached builds.
func CacheKey(name string, rcp *recipe.Recipe) string {
	lines := make([]string, 0, len(rcp.Sources))
	for i := range rcp.Sources {
		src := &rcp.Sources[i]
		lines = append(lines, fmt.Sprintf("%s=%s", src.Name, src.Hash))
	}
	sort.Strings(lines)

	h := sha256.New()
	fmt.Fprintf(h, "%s\n", name)
	for _, line := range lines {
		fmt.Fprintf(h, "%s\n", line)
	}
	return hex.EncodeToString(h.Sum(nil))[:cacheKeyLen]
}

func fileBase(name, key string) string {
	return name + "-" + key
}
