package crypto

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Blob is a decoded encrypted private key: salt || iv || ciphertext.
type Blob struct {
	Salt       []byte
	IV         []byte
	Ciphertext []byte
}

// Decode splits a base64 blob into its salt, IV and ciphertext segments.
//
// A blob with an empty ciphertext segment is rejected: CBC output with
// PKCS#7 padding is always at least one full block.
func Decode(encoded string) (*Blob, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: decode base64: %v", ErrMalformedBlob, err)
	}

	if len(raw) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrMalformedBlob, len(raw), HeaderSize)
	}

	ciphertextLen := len(raw) - HeaderSize
	if ciphertextLen == 0 {
		return nil, fmt.Errorf("%w: empty ciphertext", ErrMalformedBlob)
	}
	if ciphertextLen%BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a multiple of %d",
			ErrMalformedBlob, ciphertextLen, BlockSize)
	}

	// Copy out so segments never alias each other
	blob := &Blob{
		Salt:       make([]byte, SaltSize),
		IV:         make([]byte, IVSize),
		Ciphertext: make([]byte, ciphertextLen),
	}
	copy(blob.Salt, raw[:SaltSize])
	copy(blob.IV, raw[SaltSize:HeaderSize])
	copy(blob.Ciphertext, raw[HeaderSize:])

	return blob, nil
}

// Bytes returns the concatenated wire layout.
func (b *Blob) Bytes() []byte {
	out := make([]byte, 0, len(b.Salt)+len(b.IV)+len(b.Ciphertext))
	out = append(out, b.Salt...)
	out = append(out, b.IV...)
	out = append(out, b.Ciphertext...)
	return out
}

// String returns the base64 text form.
func (b *Blob) String() string {
	return base64.StdEncoding.EncodeToString(b.Bytes())
}

// Len returns the decoded size in bytes.
func (b *Blob) Len() int {
	return len(b.Salt) + len(b.IV) + len(b.Ciphertext)
}

// EncryptedLen returns the decoded blob size for a plaintext of n bytes.
func EncryptedLen(n int) int {
	return HeaderSize + (n/BlockSize+1)*BlockSize
}
