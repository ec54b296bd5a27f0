// Package hash computes content digests of IR modules.
//
// The digest is taken over a deterministic serialization in which local
// variable and label names are replaced by positions, so renaming them does
// not change it. Anything that can change the emitted program (constants,
// operators, function names, exports, call targets, field names) does.
package hash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/chazu/velac/pkg/ir"
)

// HashModule computes the SHA-256 content hash of m.
func HashModule(m *ir.Module) [32]byte {
	return sha256.Sum256(Serialize(m))
}

// BuildKey derives the build-cache key for compiling m with or without
// optimization.
func BuildKey(m *ir.Module, optimize bool) string {
	data := Serialize(m)
	if optimize {
		data = append(data, 1)
	} else {
		data = append(data, 0)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
