package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

type LinkID [16]byte

// tokenAlphabet is the character set for generated link tokens. 62 symbols
// give ~5.95 bits of entropy per character.
const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func NewLinkID() (LinkID, error) {
	var lid LinkID
	_, err := rand.Read(lid[:])
	return lid, err
}

func (l LinkID) Bytes() []byte {
	return l[:]
}

func (l LinkID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(l[:])
}

func ParseLinkID(linkID string) (LinkID, error) {
	var lid LinkID

	raw, err := base64.RawURLEncoding.DecodeString(linkID)
	if err != nil {
		return lid, err
	}
	if len(raw) != len(lid) {
		return lid, errors.New("invalid link id size")
	}

	copy(lid[:], raw)
	return lid, nil
}

func NewLinkToken(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("invalid token length")
	}

	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(tokenAlphabet[n.Int64()])
	}

	return b.String(), nil
}

func HashLinkToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// TokenKey derives the storage key component for a raw token. Only the hash
// ever reaches the store, so a store dump does not yield usable links.
func TokenKey(token string) string {
	sum := HashLinkToken(token)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// NewCookieValue returns the opaque browser-binding secret issued alongside
// a link when same-browser enforcement is on.
func NewCookieValue() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
