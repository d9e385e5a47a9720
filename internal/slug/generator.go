package slug

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// Symbols used for id generation. URL-safe, so ids drop straight into a path.
const defaultSymbols = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

// MaxLength bounds both generated and accepted ids
const MaxLength = 32

// Generator produces random paste ids
type Generator struct {
	symbols string
	length  int
}

// New creates a new id generator
func New(length int) *Generator {
	return &Generator{
		symbols: defaultSymbols,
		length:  length,
	}
}

// Generate creates a new random id of the configured length
func (g *Generator) Generate() (string, error) {
	result := make([]byte, g.length)
	symbolsLen := big.NewInt(int64(len(g.symbols)))

	for i := range result {
		n, err := rand.Int(rand.Reader, symbolsLen)
		if err != nil {
			return "", err
		}
		result[i] = g.symbols[n.Int64()]
	}

	return string(result), nil
}

// Valid reports whether id could have been produced by a Generator.
// Handlers use it to turn malformed ids into not-found without a store hit.
func Valid(id string) bool {
	if id == "" || len(id) > MaxLength {
		return false
	}
	for _, char := range id {
		if !strings.ContainsRune(defaultSymbols, char) {
			return false
		}
	}
	return true
}
