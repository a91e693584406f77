package crypto_test

import (
	"crypto/rand"
	"testing"

	"github.com/rollbackwallet/rollbackctl/internal/crypto"
)

func BenchmarkKeyDerivation(b *testing.B) {
	prims := crypto.NewPrimitives(nil)
	salt := make([]byte, crypto.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := prims.DeriveKey([]byte("rollback-frontend-encryption-key01"), salt,
			crypto.Iterations, crypto.KeySize, crypto.KDFHash)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEncrypt(b *testing.B) {
	enc := crypto.NewEncryptor(nil)
	privateKey := "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := enc.Encrypt(privateKey, "rollback-frontend-encryption-key01"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEncryptCBC(b *testing.B) {
	prims := crypto.NewPrimitives(nil)
	key := make([]byte, crypto.KeySize)
	iv := make([]byte, crypto.IVSize)
	plaintext := make([]byte, 1024) // 1KB
	for _, buf := range [][]byte{key, iv, plaintext} {
		if _, err := rand.Read(buf); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	b.SetBytes(int64(len(plaintext)))

	for i := 0; i < b.N; i++ {
		if _, err := prims.EncryptCBC(key, iv, plaintext); err != nil {
			b.Fatal(err)
		}
	}
}
