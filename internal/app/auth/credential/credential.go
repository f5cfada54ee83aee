// Package credential hashes and verifies user passwords.
//
// New hashes are produced with the configured algorithm; Verify accepts both
// bcrypt and argon2id hashes so accounts created under either setting keep
// working after the algorithm is switched.
package credential

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

type Algorithm string

const (
	Bcrypt   Algorithm = "bcrypt"
	Argon2id Algorithm = "argon2id"
)

const DefaultBcryptCost = 12

// Passwords are cut to bcrypt's 72-byte input limit before hashing and
// verifying.
const bcryptMaxLen = 72

var argonParams = &argon2id.Params{
	Memory:      64 * 1024, // 64 MiB
	Iterations:  2,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

var ErrEmptyPassword = errors.New("password cannot be empty")

type Hasher struct {
	algo Algorithm
	cost int
}

func New(algo Algorithm, bcryptCost int) (*Hasher, error) {
	switch algo {
	case Bcrypt:
		if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
			return nil, fmt.Errorf("bcrypt cost %d out of range", bcryptCost)
		}
	case Argon2id:
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", algo)
	}
	return &Hasher{algo: algo, cost: bcryptCost}, nil
}

// Hash returns a salted one-way hash of plaintext. Two calls with the same
// input never return the same string.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	if h.algo == Argon2id {
		return argon2id.CreateHash(plaintext, argonParams)
	}
	b, err := bcrypt.GenerateFromPassword(bcryptInput(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether plaintext matches hash. Malformed or empty hashes
// are a mismatch, not an error.
func (h *Hasher) Verify(plaintext, hash string) bool {
	switch {
	case hash == "":
		return false
	case isArgon2id(hash):
		ok, err := argon2id.ComparePasswordAndHash(plaintext, hash)
		return err == nil && ok
	default:
		return bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(plaintext)) == nil
	}
}

// NeedsRehash reports whether hash was produced with a different algorithm or
// bcrypt cost than the one currently configured.
func (h *Hasher) NeedsRehash(hash string) bool {
	if isArgon2id(hash) {
		return h.algo != Argon2id
	}
	if h.algo != Bcrypt {
		return true
	}
	cost, err := bcrypt.Cost([]byte(hash))
	return err != nil || cost != h.cost
}

func isArgon2id(hash string) bool {
	return strings.HasPrefix(hash, "$argon2id$")
}

func bcryptInput(plaintext string) []byte {
	b := []byte(plaintext)
	if len(b) > bcryptMaxLen {
		b = b[:bcryptMaxLen]
	}
	return b
}
