// Package idgen generates short, prefixed, random entity identifiers.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// New returns a new identifier of the form "<prefix>_<12 hex chars>".
func New(prefix string) (string, error) {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("idgen: generate %s id: %w", prefix, err)
	}
	return prefix + "_" + hex.EncodeToString(b[:]), nil
}

// MustNew panics if id generation fails. crypto/rand only fails when the
// system entropy source is broken, which callers cannot meaningfully
// recover from.
func MustNew(prefix string) string {
	id, err := New(prefix)
	if err != nil {
		panic(err)
	}
	return id
}
