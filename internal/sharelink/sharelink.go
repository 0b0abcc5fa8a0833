package sharelink

import (
	"crypto/rand"
	"fmt"
	"io"
)

const (
	// Length is the number of characters in a shareable link token.
	Length   = 16
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	// Bytes at or above this value are rejected so every symbol is equally likely.
	rejectFrom = 256 - 256%len(alphabet)
)

// Generator produces shareable link tokens.
type Generator struct {
	source io.Reader
}

// NewGenerator returns a Generator reading from crypto/rand.
func NewGenerator() *Generator {
	return &Generator{source: rand.Reader}
}

// NewGeneratorFrom returns a Generator reading from the provided source. Useful for tests.
func NewGeneratorFrom(source io.Reader) *Generator {
	return &Generator{source: source}
}

// Generate returns a new token.
func (g *Generator) Generate() (string, error) {
	out := make([]byte, 0, Length)
	buf := make([]byte, Length*2)
	for len(out) < Length {
		if _, err := io.ReadFull(g.source, buf); err != nil {
			return "", fmt.Errorf("read randomness: %w", err)
		}
		for _, b := range buf {
			if int(b) >= rejectFrom {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == Length {
				break
			}
		}
	}
	return string(out), nil
}

// Valid reports whether token has the shape of an issued token.
func Valid(token string) bool {
	if len(token) != Length {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
