package crypto_test

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollbackwallet/rollbackctl/internal/crypto"
	"github.com/rollbackwallet/rollbackctl/internal/crypto/testdata"
)

// fastKDF keeps real randomness and AES but runs a single PBKDF2 round,
// for tests that encrypt many times.
type fastKDF struct {
	*crypto.StdPrimitives
}

func (f fastKDF) DeriveKey(passphrase, salt []byte, _, keyLen int, alg crypto.HashAlgorithm) ([]byte, error) {
	return f.StdPrimitives.DeriveKey(passphrase, salt, 1, keyLen, alg)
}

func newFastEncryptor() *crypto.Encryptor {
	return crypto.NewEncryptor(fastKDF{crypto.NewPrimitives(nil)})
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("entropy source closed") }

type brokenKDF struct {
	*crypto.StdPrimitives
}

func (brokenKDF) DeriveKey([]byte, []byte, int, int, crypto.HashAlgorithm) ([]byte, error) {
	return nil, errors.New("pbkdf2 not available")
}

func TestEncryptor_GoldenVectors(t *testing.T) {
	for _, vector := range testdata.Vectors {
		t.Run(vector.Name, func(t *testing.T) {
			enc := crypto.NewEncryptor(crypto.NewPrimitives(&testdata.CountingReader{}))

			blob, err := enc.Encrypt(vector.Plaintext, vector.KeyMaterial)
			require.NoError(t, err)
			assert.Equal(t, vector.Blob, blob)

			decoded, err := crypto.Decode(blob)
			require.NoError(t, err)
			assert.Equal(t, vector.Ciphertext, hex.EncodeToString(decoded.Ciphertext))

			plaintext, err := enc.Decrypt(blob, vector.KeyMaterial)
			require.NoError(t, err)
			assert.Equal(t, vector.Plaintext, plaintext)
		})
	}
}

func TestPrimitives_DeriveKeyVectors(t *testing.T) {
	prims := crypto.NewPrimitives(&testdata.CountingReader{})
	salt, err := prims.RandomBytes(crypto.SaltSize)
	require.NoError(t, err)

	for _, vector := range testdata.Vectors {
		t.Run(vector.Name, func(t *testing.T) {
			key, err := prims.DeriveKey([]byte(vector.KeyMaterial), salt, crypto.Iterations, crypto.KeySize, crypto.SHA512)
			require.NoError(t, err)
			assert.Equal(t, vector.DerivedKey, hex.EncodeToString(key))
		})
	}
}

func TestEncrypt_SegmentLengths(t *testing.T) {
	enc := newFastEncryptor()

	plaintexts := []string{
		"",
		"a",
		"exactly sixteen!",
		strings.Repeat("f", 31),
		strings.Repeat("0", 64),
		strings.Repeat("ключ", 100),
	}

	for _, p := range plaintexts {
		blob, err := enc.Encrypt(p, "rollback-frontend-encryption-key01")
		require.NoError(t, err)

		decoded, err := crypto.Decode(blob)
		require.NoError(t, err)

		assert.Len(t, decoded.Salt, crypto.SaltSize)
		assert.Len(t, decoded.IV, crypto.IVSize)
		assert.Equal(t, crypto.EncryptedLen(len(p)), decoded.Len())
		assert.Zero(t, len(decoded.Ciphertext)%crypto.BlockSize)
	}
}

func TestEncrypt_EmptyPlaintextIsOneBlock(t *testing.T) {
	blob, err := crypto.Encrypt("", "same-key")
	require.NoError(t, err)

	decoded, err := crypto.Decode(blob)
	require.NoError(t, err)
	assert.Len(t, decoded.Ciphertext, crypto.BlockSize)

	plaintext, err := crypto.Decrypt(blob, "same-key")
	require.NoError(t, err)
	assert.Empty(t, plaintext)
}

func TestEncrypt_HexPrivateKeyLength(t *testing.T) {
	privateKey := "0x" + strings.Repeat("1234abcdef", 6) + "cdef"
	require.Len(t, privateKey, 66)

	blob, err := crypto.Encrypt(privateKey, "rollback-frontend-encryption-key01")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)
	// 64 + 16 + ceil((66+1)/16)*16
	assert.Len(t, raw, 160)

	plaintext, err := crypto.Decrypt(blob, "rollback-frontend-encryption-key01")
	require.NoError(t, err)
	assert.Equal(t, privateKey, plaintext)
}

func TestEncrypt_FreshRandomness(t *testing.T) {
	enc := newFastEncryptor()

	const trials = 128
	blobs := make(map[string]bool, trials)
	headers := make(map[string]bool, trials)

	for i := 0; i < trials; i++ {
		blob, err := enc.Encrypt("same-secret", "same-key")
		require.NoError(t, err)

		assert.False(t, blobs[blob], "blob repeated on trial %d", i)
		blobs[blob] = true

		raw, err := base64.StdEncoding.DecodeString(blob)
		require.NoError(t, err)
		header := string(raw[:crypto.HeaderSize])
		assert.False(t, headers[header], "salt||iv repeated on trial %d", i)
		headers[header] = true
	}
}

func TestEncrypt_SaltAndIVAreIndependent(t *testing.T) {
	enc := newFastEncryptor()

	blob, err := enc.Encrypt("secret", "key")
	require.NoError(t, err)

	decoded, err := crypto.Decode(blob)
	require.NoError(t, err)
	assert.NotEqual(t, decoded.Salt[:crypto.IVSize], decoded.IV)
}

func TestEncrypt_RoundTrip(t *testing.T) {
	enc := newFastEncryptor()

	tests := []struct {
		name      string
		plaintext string
		key       string
	}{
		{"hex private key", "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318", "rollback-frontend-encryption-key01"},
		{"mnemonic", "abandon ability able about above absent absorb abstract absurd abuse access accident", "k"},
		{"unicode key material", "secret", "пароль🔑"},
		{"block multiple", strings.Repeat("x", 48), "key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := enc.Encrypt(tt.plaintext, tt.key)
			require.NoError(t, err)

			plaintext, err := enc.Decrypt(blob, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, plaintext)
		})
	}
}

func TestEncrypt_Errors(t *testing.T) {
	t.Run("empty key material", func(t *testing.T) {
		_, err := crypto.NewEncryptor(nil).Encrypt("secret", "")
		assert.ErrorIs(t, err, crypto.ErrEmptyKeyMaterial)
	})

	t.Run("invalid UTF-8 plaintext", func(t *testing.T) {
		_, err := crypto.NewEncryptor(nil).Encrypt(string([]byte{0xff, 0xfe}), "key")
		assert.ErrorIs(t, err, crypto.ErrEncodingFailure)
	})

	t.Run("invalid UTF-8 key material", func(t *testing.T) {
		_, err := crypto.NewEncryptor(nil).Encrypt("secret", string([]byte{0xc3, 0x28}))
		assert.ErrorIs(t, err, crypto.ErrEncodingFailure)
	})

	t.Run("random source fails", func(t *testing.T) {
		enc := crypto.NewEncryptor(crypto.NewPrimitives(errReader{}))
		blob, err := enc.Encrypt("secret", "key")
		assert.ErrorIs(t, err, crypto.ErrCryptoUnavailable)
		assert.Empty(t, blob)
	})

	t.Run("key derivation fails", func(t *testing.T) {
		enc := crypto.NewEncryptor(brokenKDF{crypto.NewPrimitives(nil)})
		blob, err := enc.Encrypt("secret", "key")
		assert.ErrorIs(t, err, crypto.ErrCryptoUnavailable)
		assert.Empty(t, blob)
	})

	t.Run("nil encryptor", func(t *testing.T) {
		var enc *crypto.Encryptor
		_, err := enc.Encrypt("secret", "key")
		assert.ErrorIs(t, err, crypto.ErrCryptoUnavailable)
	})
}

func TestDecrypt_Errors(t *testing.T) {
	golden := testdata.Vectors[1]
	enc := crypto.NewEncryptor(nil)

	t.Run("wrong key material", func(t *testing.T) {
		_, err := enc.Decrypt(golden.Blob, "not-the-key")
		assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
	})

	t.Run("tampered ciphertext", func(t *testing.T) {
		raw, err := base64.StdEncoding.DecodeString(golden.Blob)
		require.NoError(t, err)
		raw[len(raw)-1] ^= 0xFF

		_, err = enc.Decrypt(base64.StdEncoding.EncodeToString(raw), golden.KeyMaterial)
		assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
	})

	t.Run("malformed blob", func(t *testing.T) {
		_, err := enc.Decrypt("c2hvcnQ=", golden.KeyMaterial)
		assert.ErrorIs(t, err, crypto.ErrMalformedBlob)
	})

	t.Run("empty key material", func(t *testing.T) {
		_, err := enc.Decrypt(golden.Blob, "")
		assert.ErrorIs(t, err, crypto.ErrEmptyKeyMaterial)
	})
}

func TestEncryptContext(t *testing.T) {
	enc := newFastEncryptor()

	t.Run("completes", func(t *testing.T) {
		blob, err := enc.EncryptContext(context.Background(), "secret", "key")
		require.NoError(t, err)

		plaintext, err := enc.Decrypt(blob, "key")
		require.NoError(t, err)
		assert.Equal(t, "secret", plaintext)
	})

	t.Run("cancelled before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		blob, err := enc.EncryptContext(ctx, "secret", "key")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, blob)
	})

	t.Run("propagates encryption errors", func(t *testing.T) {
		_, err := enc.EncryptContext(context.Background(), "secret", "")
		assert.ErrorIs(t, err, crypto.ErrEmptyKeyMaterial)
	})
}

func TestEncryptor_ConcurrentUse(t *testing.T) {
	enc := newFastEncryptor()

	var wg sync.WaitGroup
	errs := make(chan error, 16)

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			secret := strings.Repeat("s", i)
			blob, err := enc.Encrypt(secret, "shared-key")
			if err != nil {
				errs <- err
				return
			}
			got, err := enc.Decrypt(blob, "shared-key")
			if err != nil {
				errs <- err
				return
			}
			if got != secret {
				errs <- errors.New("round trip mismatch")
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestSecurityRequirements(t *testing.T) {
	t.Run("key derivation constants", func(t *testing.T) {
		assert.Equal(t, 100000, crypto.Iterations)
		assert.Equal(t, crypto.SHA512, crypto.KDFHash)
	})

	t.Run("key size is 256 bits", func(t *testing.T) {
		assert.Equal(t, 32, crypto.KeySize)
	})

	t.Run("header layout", func(t *testing.T) {
		assert.Equal(t, 64, crypto.SaltSize)
		assert.Equal(t, 16, crypto.IVSize)
		assert.Equal(t, 80, crypto.HeaderSize)
	})
}
