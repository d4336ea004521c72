package crypto

import (
	"fmt"

	"github.com/fernet/fernet-go"
)

// Cipher encrypts and decrypts inbox credentials with a process-wide
// fernet key. It is applied only at the inbox password boundary: encrypt
// on registration, decrypt when opening an IMAP session.
type Cipher struct {
	key *fernet.Key
}

// NewCipher parses a base64 fernet key, typically sourced from the
// ENCRYPTION_KEY environment variable.
func NewCipher(encodedKey string) (*Cipher, error) {
	if encodedKey == "" {
		return nil, fmt.Errorf("encryption key is empty")
	}
	key, err := fernet.DecodeKey(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption key: %w", err)
	}
	return &Cipher{key: key}, nil
}

// Encrypt returns the fernet token for a plaintext password.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	tok, err := fernet.EncryptAndSign([]byte(plaintext), c.key)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt credential: %w", err)
	}
	return string(tok), nil
}

// Decrypt recovers the plaintext password from a stored token.
// Tokens do not expire; a zero TTL disables the freshness check.
func (c *Cipher) Decrypt(token string) (string, error) {
	msg := fernet.VerifyAndDecrypt([]byte(token), 0, []*fernet.Key{c.key})
	if msg == nil {
		return "", fmt.Errorf("failed to decrypt credential: invalid token")
	}
	return string(msg), nil
}
