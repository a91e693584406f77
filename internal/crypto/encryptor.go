package crypto

import (
	"context"
	"encoding/base64"
	"fmt"
	"unicode/utf8"
)

// Wire format constants. The backend decryptor uses the same values;
// changing any of them breaks every stored blob.
const (
	SaltSize   = 64 // PBKDF2 salt
	IVSize     = 16 // AES-CBC IV
	BlockSize  = 16 // AES block
	KeySize    = 32 // AES-256
	HeaderSize = SaltSize + IVSize

	// PBKDF2 parameters
	Iterations = 100000
	KDFHash    = SHA512
)

// Encryptor turns private keys into base64 blobs of the form
// salt(64) || iv(16) || AES-256-CBC ciphertext.
//
// An Encryptor holds no per-call state and is safe for concurrent use.
type Encryptor struct {
	prims Primitives
}

// NewEncryptor creates an encryptor over the given primitives.
// Passing nil selects the standard library implementation.
func NewEncryptor(prims Primitives) *Encryptor {
	if prims == nil {
		prims = NewPrimitives(nil)
	}
	return &Encryptor{prims: prims}
}

var defaultEncryptor = NewEncryptor(nil)

// Encrypt encrypts plaintext with the default encryptor.
func Encrypt(plaintext, keyMaterial string) (string, error) {
	return defaultEncryptor.Encrypt(plaintext, keyMaterial)
}

// Decrypt decrypts a blob with the default encryptor.
func Decrypt(encoded, keyMaterial string) (string, error) {
	return defaultEncryptor.Decrypt(encoded, keyMaterial)
}

// Encrypt derives a fresh key from keyMaterial and a new random salt,
// encrypts plaintext under a new random IV, and returns the base64 blob.
func (e *Encryptor) Encrypt(plaintext, keyMaterial string) (string, error) {
	if e == nil || e.prims == nil {
		return "", ErrCryptoUnavailable
	}
	if err := checkInputs(plaintext, keyMaterial); err != nil {
		return "", err
	}

	// Salt and IV are independent reads
	salt, err := e.random(SaltSize)
	if err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	iv, err := e.random(IVSize)
	if err != nil {
		return "", fmt.Errorf("generate IV: %w", err)
	}

	key, err := e.deriveKey(keyMaterial, salt)
	if err != nil {
		return "", err
	}
	defer clear(key)

	ciphertext, err := e.prims.EncryptCBC(key, iv, []byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("%w: encrypt: %v", ErrCryptoUnavailable, err)
	}

	blob := Blob{Salt: salt, IV: iv, Ciphertext: ciphertext}
	return base64.StdEncoding.EncodeToString(blob.Bytes()), nil
}

// EncryptContext runs Encrypt on its own goroutine so key derivation
// does not hold up the caller past ctx. Key derivation is not
// interrupted; when ctx ends first its result is dropped.
func (e *Encryptor) EncryptContext(ctx context.Context, plaintext, keyMaterial string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type result struct {
		blob string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		blob, err := e.Encrypt(plaintext, keyMaterial)
		done <- result{blob: blob, err: err}
	}()

	select {
	case r := <-done:
		return r.blob, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Decrypt reverses Encrypt. It is the reference counterpart of the
// backend decryptor.
func (e *Encryptor) Decrypt(encoded, keyMaterial string) (string, error) {
	if e == nil || e.prims == nil {
		return "", ErrCryptoUnavailable
	}
	if keyMaterial == "" {
		return "", ErrEmptyKeyMaterial
	}
	if !utf8.ValidString(keyMaterial) {
		return "", fmt.Errorf("%w: key material", ErrEncodingFailure)
	}

	blob, err := Decode(encoded)
	if err != nil {
		return "", err
	}

	key, err := e.deriveKey(keyMaterial, blob.Salt)
	if err != nil {
		return "", err
	}
	defer clear(key)

	plaintext, err := e.prims.DecryptCBC(key, blob.IV, blob.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	// A wrong key occasionally yields valid padding
	if !utf8.Valid(plaintext) {
		return "", fmt.Errorf("%w: plaintext is not valid UTF-8", ErrDecryptionFailed)
	}

	return string(plaintext), nil
}

func (e *Encryptor) random(n int) ([]byte, error) {
	buf, err := e.prims.RandomBytes(n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoUnavailable, err)
	}
	if len(buf) != n {
		return nil, fmt.Errorf("%w: short random read: %d of %d bytes", ErrCryptoUnavailable, len(buf), n)
	}
	return buf, nil
}

func (e *Encryptor) deriveKey(keyMaterial string, salt []byte) ([]byte, error) {
	key, err := e.prims.DeriveKey([]byte(keyMaterial), salt, Iterations, KeySize, KDFHash)
	if err != nil {
		return nil, fmt.Errorf("%w: derive key: %v", ErrCryptoUnavailable, err)
	}
	if len(key) != KeySize {
		clear(key)
		return nil, fmt.Errorf("%w: derived key is %d bytes", ErrCryptoUnavailable, len(key))
	}
	return key, nil
}

func checkInputs(plaintext, keyMaterial string) error {
	if keyMaterial == "" {
		return ErrEmptyKeyMaterial
	}
	if !utf8.ValidString(keyMaterial) {
		return fmt.Errorf("%w: key material", ErrEncodingFailure)
	}
	if !utf8.ValidString(plaintext) {
		return fmt.Errorf("%w: plaintext", ErrEncodingFailure)
	}
	return nil
}
