package wallet

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters sized for interactive key unsealing.
const (
	scryptN      = 16384
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

// EncryptedKey is the persisted ciphertext envelope for an agent
// private key. The explicit version tag replaces the older ambiguous
// colon-delimited encodings.
type EncryptedKey struct {
	Version    int    `json:"v"`
	Salt       string `json:"salt"` // hex
	IV         string `json:"iv"`   // hex
	Ciphertext string `json:"data"` // hex
}

func deriveKey(secret string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(secret), salt, scryptN, scryptR, scryptP, scryptKeyLen)
}

// EncryptKey seals a hex private key under a secret with a per-key
// random salt (scrypt KDF, AES-256-CBC).
func EncryptKey(secret, privateKeyHex string) (EncryptedKey, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return EncryptedKey{}, fmt.Errorf("salt: %w", err)
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return EncryptedKey{}, fmt.Errorf("iv: %w", err)
	}
	key, err := deriveKey(secret, salt)
	if err != nil {
		return EncryptedKey{}, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return EncryptedKey{}, err
	}
	plaintext := pkcs7Pad([]byte(privateKeyHex), aes.BlockSize)
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)

	return EncryptedKey{
		Version:    1,
		Salt:       hex.EncodeToString(salt),
		IV:         hex.EncodeToString(iv),
		Ciphertext: hex.EncodeToString(ciphertext),
	}, nil
}

// DecryptKey unseals an envelope back to the hex private key.
func DecryptKey(secret string, ek EncryptedKey) (string, error) {
	if ek.Version != 1 {
		return "", fmt.Errorf("unsupported key envelope version %d", ek.Version)
	}
	salt, err := hex.DecodeString(ek.Salt)
	if err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}
	iv, err := hex.DecodeString(ek.IV)
	if err != nil {
		return "", fmt.Errorf("iv: %w", err)
	}
	ciphertext, err := hex.DecodeString(ek.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("ciphertext: %w", err)
	}
	if len(iv) != aes.BlockSize || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("malformed key envelope")
	}

	key, err := deriveKey(secret, salt)
	if err != nil {
		return "", fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	out, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// legacyStaticSalt matches the pre-envelope export format so old
// two-part ciphertexts remain importable.
var legacyStaticSalt = []byte("agent-key-salt")

// ImportLegacy converts a colon-delimited ciphertext ("iv:data" or
// "salt:iv:data") into a versioned envelope without re-encrypting.
func ImportLegacy(encoded string) (EncryptedKey, error) {
	parts := strings.Split(encoded, ":")
	switch len(parts) {
	case 3:
		return EncryptedKey{Version: 1, Salt: parts[0], IV: parts[1], Ciphertext: parts[2]}, nil
	case 2:
		return EncryptedKey{
			Version:    1,
			Salt:       hex.EncodeToString(legacyStaticSalt),
			IV:         parts[0],
			Ciphertext: parts[1],
		}, nil
	default:
		return EncryptedKey{}, fmt.Errorf("unrecognized legacy ciphertext with %d parts", len(parts))
	}
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(b))
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
