// Package creds generates initial account credentials.
package creds

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// DefaultLength is the credential length used when callers have no policy of
// their own.
const DefaultLength = 12

// Character classes exclude glyphs that are easy to misread when a credential
// is handed over on paper or read out loud: 0/O, 1/l/I and friends.
const (
	upperAlphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	lowerAlphabet  = "abcdefghijkmnopqrstuvwxyz"
	digitAlphabet  = "23456789"
	symbolAlphabet = "!#$%&*+-=?@"
)

var classAlphabets = []string{upperAlphabet, lowerAlphabet, digitAlphabet, symbolAlphabet}

var unionAlphabet = upperAlphabet + lowerAlphabet + digitAlphabet + symbolAlphabet

// Generate produces a random credential of the requested length containing at
// least one character from each of the four classes. Lengths below the number
// of classes are raised to DefaultLength. All randomness comes from
// crypto/rand; a failure there is unrecoverable and panics.
func Generate(length int) string {
	if length < len(classAlphabets) {
		length = DefaultLength
	}

	out := make([]byte, length)

	// One guaranteed pick per class, then uniform picks from the union.
	for i, alphabet := range classAlphabets {
		out[i] = alphabet[secureIndex(len(alphabet))]
	}
	for i := len(classAlphabets); i < length; i++ {
		out[i] = unionAlphabet[secureIndex(len(unionAlphabet))]
	}

	// Fisher-Yates shuffle so the guaranteed-class characters do not sit in
	// predictable positions.
	for i := length - 1; i > 0; i-- {
		j := secureIndex(i + 1)
		out[i], out[j] = out[j], out[i]
	}

	return string(out)
}

// secureIndex returns a uniform random index in [0, n) from crypto/rand.
func secureIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(fmt.Sprintf("creds: secure random source unavailable: %v", err))
	}
	return int(v.Int64())
}
