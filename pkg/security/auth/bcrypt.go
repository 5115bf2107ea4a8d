package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/crypto/blowfish"
)

// bcrypt parameters, identical to golang.org/x/crypto/bcrypt and OpenBSD.
const (
	bcryptMinCost     = 4
	bcryptMaxCost     = 31
	bcryptSaltLen     = 29 // "$2b$10$" + 22 encoded salt characters
	bcryptEncodedSalt = 22
	bcryptHashBytes   = 23
)

var (
	bcryptEncoding = base64.NewEncoding("./ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789").
			WithPadding(base64.NoPadding)

	bcryptMagic = []byte("OrpheanBeholderScryDoubt")

	// ErrInvalidSalt is returned when the salt is not a bcrypt salt string.
	ErrInvalidSalt = errors.New("invalid bcrypt salt")
)

// Hasher derives the lookup hash of a credential secret. Implementations
// must be deterministic for a given salt and secret.
type Hasher interface {
	Hash(secret, salt string) (string, error)
}

// BcryptHasher hashes secrets with bcrypt using the salt supplied by the
// caller, the way Node's bcrypt.hash(data, salt) does. x/crypto/bcrypt only
// generates its own random salt, so the key schedule is driven directly
// through x/crypto/blowfish here.
//
// The salt must look like "$2b$10$abcdefghijklmnopqrstuu" (versions 2a, 2b
// and 2y are accepted; cost 04..31). A full bcrypt hash is also accepted as
// salt; only its first 29 characters are used. The result is the complete
// 60-character bcrypt string, e.g. "$2b$10$<salt><hash>".
type BcryptHasher struct{}

// Hash implements Hasher.
func (BcryptHasher) Hash(secret, salt string) (string, error) {
	version, cost, encodedSalt, err := parseBcryptSalt(salt)
	if err != nil {
		return "", err
	}

	rawSalt, err := bcryptEncoding.DecodeString(encodedSalt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSalt, err)
	}

	sum, err := bcryptSum([]byte(secret), cost, rawSalt)
	if err != nil {
		return "", err
	}

	// The salt is re-encoded so unused low bits in its last character are
	// zeroed, as OpenBSD and Node bcrypt do.
	return fmt.Sprintf("$%s$%02d$%s%s", version, cost, bcryptEncoding.EncodeToString(rawSalt), bcryptEncoding.EncodeToString(sum)), nil
}

func parseBcryptSalt(salt string) (version string, cost int, encoded string, err error) {
	if len(salt) < bcryptSaltLen {
		return "", 0, "", fmt.Errorf("%w: too short", ErrInvalidSalt)
	}
	if salt[0] != '$' || salt[3] != '$' || salt[6] != '$' {
		return "", 0, "", fmt.Errorf("%w: malformed", ErrInvalidSalt)
	}

	version = salt[1:3]
	switch version {
	case "2a", "2b", "2y":
	default:
		return "", 0, "", fmt.Errorf("%w: unsupported version %q", ErrInvalidSalt, version)
	}

	cost, err = strconv.Atoi(salt[4:6])
	if err != nil {
		return "", 0, "", fmt.Errorf("%w: cost: %v", ErrInvalidSalt, err)
	}
	if cost < bcryptMinCost || cost > bcryptMaxCost {
		return "", 0, "", fmt.Errorf("%w: cost %d outside %d..%d", ErrInvalidSalt, cost, bcryptMinCost, bcryptMaxCost)
	}

	return version, cost, salt[7 : 7+bcryptEncodedSalt], nil
}

// bcryptSum runs the eksblowfish setup and encrypts the magic text. Only 23
// of the 24 encrypted bytes are kept, as every C implementation does.
func bcryptSum(password []byte, cost int, salt []byte) ([]byte, error) {
	// The trailing NUL is part of the key in every bcrypt implementation.
	key := make([]byte, len(password)+1)
	copy(key, password)

	c, err := blowfish.NewSaltedCipher(key, salt)
	if err != nil {
		return nil, err
	}

	rounds := uint64(1) << uint(cost)
	for i := uint64(0); i < rounds; i++ {
		blowfish.ExpandKey(key, c)
		blowfish.ExpandKey(salt, c)
	}

	text := make([]byte, len(bcryptMagic))
	copy(text, bcryptMagic)
	for i := 0; i < len(text); i += 8 {
		for j := 0; j < 64; j++ {
			c.Encrypt(text[i:i+8], text[i:i+8])
		}
	}

	return text[:bcryptHashBytes], nil
}
