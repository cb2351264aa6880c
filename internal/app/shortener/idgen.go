package shortener

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	// IDLength is the number of hex characters in an identifier.
	IDLength = 8
	// MaxAttempts bounds how many candidates are drawn before giving up.
	MaxAttempts = 100
)

var ErrGenerationExhausted = errors.New("identifier generation exhausted")

// Generator draws random identifiers. The zero value is ready to use.
type Generator struct {
	// Source returns a fresh random token of at least IDLength lowercase hex
	// characters. Nil means a random (v4) UUID.
	Source func() (string, error)
}

// NewGenerator returns a Generator backed by random UUIDs.
func NewGenerator() *Generator {
	return &Generator{}
}

// Draw returns one candidate identifier without checking for collisions.
func (g *Generator) Draw() (string, error) {
	src := g.Source
	if src == nil {
		src = uuidHex
	}
	tok, err := src()
	if err != nil {
		return "", fmt.Errorf("draw identifier: %w", err)
	}
	if len(tok) < IDLength {
		return "", fmt.Errorf("draw identifier: token %q too short", tok)
	}
	return tok[:IDLength], nil
}

// Generate returns an identifier that is not in existing. It never touches
// storage; the caller supplies the current key set. After MaxAttempts
// colliding draws it fails with ErrGenerationExhausted.
func (g *Generator) Generate(existing map[string]struct{}) (string, error) {
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		id, err := g.Draw()
		if err != nil {
			return "", err
		}
		if _, used := existing[id]; !used {
			return id, nil
		}
	}
	return "", ErrGenerationExhausted
}

// uuidHex 取随机 UUID 的十六进制形式，前 8 位是完整的 32 位随机数。
func uuidHex() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(u[:]), nil
}
