package core

import (
	"encoding/hex"

	"github.com/go-crypt/x/blake2b"
)

// ComputeHash returns the hex encoded BLAKE2b-256 digest of text. It is the
// content hash used to decide whether an entity needs re-embedding.
func ComputeHash(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
