package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const secretLen = 32 // 256 bits of entropy

// Minted is a freshly generated voting token. Plaintext is the only form
// ever shown outside this process; Hash and Salt are what gets stored.
type Minted struct {
	ID        uuid.UUID
	Plaintext string
	Salt      string
	Hash      string
}

// Mint generates a new single-use voting token. The plaintext has the form
// "<id>.<secret>" so the server can locate the stored row and recompute the
// salted hash without ever persisting the secret.
func Mint() (Minted, error) {
	secret := make([]byte, secretLen)
	if _, err := rand.Read(secret); err != nil {
		return Minted{}, fmt.Errorf("generate token secret: %w", err)
	}
	saltBytes := make([]byte, 16)
	if _, err := rand.Read(saltBytes); err != nil {
		return Minted{}, fmt.Errorf("generate token salt: %w", err)
	}

	id := uuid.New()
	encSecret := base64.RawURLEncoding.EncodeToString(secret)
	salt := hex.EncodeToString(saltBytes)

	return Minted{
		ID:        id,
		Plaintext: id.String() + "." + encSecret,
		Salt:      salt,
		Hash:      HashWithSalt(encSecret, salt),
	}, nil
}

// HashWithSalt returns the hex-encoded SHA256 of salt||secret.
func HashWithSalt(secret, salt string) string {
	h := sha256.Sum256([]byte(salt + secret))
	return hex.EncodeToString(h[:])
}

// Parse splits a plaintext token into its row ID and secret part. Errors are
// generic on purpose; malformed tokens must be indistinguishable from
// unknown ones.
func Parse(plaintext string) (uuid.UUID, string, error) {
	idPart, secret, ok := strings.Cut(plaintext, ".")
	if !ok || secret == "" {
		return uuid.Nil, "", fmt.Errorf("malformed token")
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("malformed token")
	}
	return id, secret, nil
}

// Verify compares a secret against a stored salted hash in constant time.
func Verify(secret, salt, storedHash string) bool {
	computed := HashWithSalt(secret, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
