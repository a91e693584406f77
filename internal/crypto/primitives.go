package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// HashAlgorithm selects the PRF used by key derivation.
type HashAlgorithm int

const (
	SHA256 HashAlgorithm = iota
	SHA512
)

func (h HashAlgorithm) String() string {
	switch h {
	case SHA256:
		return "sha256"
	case SHA512:
		return "sha512"
	default:
		return fmt.Sprintf("hash(%d)", int(h))
	}
}

// Primitives defines the platform capabilities the Encryptor relies on.
type Primitives interface {
	// RandomBytes returns n bytes from a cryptographically secure source.
	RandomBytes(n int) ([]byte, error)

	// DeriveKey stretches a passphrase into a key of keyLen bytes.
	DeriveKey(passphrase, salt []byte, iterations, keyLen int, alg HashAlgorithm) ([]byte, error)

	// EncryptCBC pads plaintext with PKCS#7 and encrypts it with AES-CBC.
	EncryptCBC(key, iv, plaintext []byte) ([]byte, error)

	// DecryptCBC decrypts AES-CBC ciphertext and strips PKCS#7 padding.
	DecryptCBC(key, iv, ciphertext []byte) ([]byte, error)
}

// StdPrimitives implements Primitives with crypto/aes and x/crypto/pbkdf2.
type StdPrimitives struct {
	random io.Reader
}

// NewPrimitives creates primitives reading randomness from r.
// A nil reader selects crypto/rand.
func NewPrimitives(r io.Reader) *StdPrimitives {
	if r == nil {
		r = rand.Reader
	}
	return &StdPrimitives{random: r}
}

// RandomBytes reads exactly n bytes of randomness.
func (p *StdPrimitives) RandomBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid random length: %d", n)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(p.random, buf); err != nil {
		return nil, fmt.Errorf("read random: %w", err)
	}

	return buf, nil
}

// DeriveKey runs PBKDF2 with the selected hash.
func (p *StdPrimitives) DeriveKey(passphrase, salt []byte, iterations, keyLen int, alg HashAlgorithm) ([]byte, error) {
	if iterations <= 0 {
		return nil, fmt.Errorf("invalid iteration count: %d", iterations)
	}
	if keyLen <= 0 {
		return nil, fmt.Errorf("invalid key length: %d", keyLen)
	}

	var hashFunc func() hash.Hash
	switch alg {
	case SHA256:
		hashFunc = sha256.New
	case SHA512:
		hashFunc = sha512.New
	default:
		return nil, fmt.Errorf("unsupported hash function: %v", alg)
	}

	return pbkdf2.Key(passphrase, salt, iterations, keyLen, hashFunc), nil
}

// EncryptCBC encrypts plaintext under key and iv.
func (p *StdPrimitives) EncryptCBC(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("invalid IV size: expected %d, got %d", block.BlockSize(), len(iv))
	}

	padded := pkcs7Pad(plaintext, block.BlockSize())

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return ciphertext, nil
}

// DecryptCBC decrypts ciphertext under key and iv.
func (p *StdPrimitives) DecryptCBC(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("invalid IV size: expected %d, got %d", block.BlockSize(), len(iv))
	}

	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, errInvalidPadding
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext, block.BlockSize())
}
