package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
)

// ContentHash digests a canonicalized attribute bag. Keys are sorted and
// joined with unit separators so the digest is independent of map iteration
// order and any single changed attribute changes the hash.
func ContentHash(h harvester.Hasher, attrs map[string]string) (string, error) {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(0x1f)
		b.WriteString(attrs[k])
		b.WriteByte(0x1e)
	}
	digest, err := h.Hash([]byte(b.String()))
	if err != nil {
		return "", fmt.Errorf("hash attribute bag: %w", err)
	}
	return digest, nil
}
