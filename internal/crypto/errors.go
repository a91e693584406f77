package crypto

import "errors"

// Errors
var (
	// ErrCryptoUnavailable means a required primitive is missing or failed.
	ErrCryptoUnavailable = errors.New("crypto: primitives unavailable")

	// ErrEncodingFailure means an input string is not valid UTF-8.
	ErrEncodingFailure = errors.New("crypto: input is not valid UTF-8")

	// ErrMalformedBlob means an encrypted blob cannot be split into its segments.
	ErrMalformedBlob = errors.New("crypto: malformed encrypted blob")

	// ErrEmptyKeyMaterial means no passphrase was supplied.
	ErrEmptyKeyMaterial = errors.New("crypto: key material is empty")

	// ErrDecryptionFailed means the blob did not decrypt under the given key material.
	ErrDecryptionFailed = errors.New("crypto: decryption failed")
)
