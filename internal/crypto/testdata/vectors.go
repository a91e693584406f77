package testdata

// TestVector contains known input/output pairs for testing.
//
// Every vector was produced independently with PBKDF2-HMAC-SHA512
// (100000 iterations) and `openssl enc -aes-256-cbc`, using salt bytes
// 0x00..0x3f and IV bytes 0x40..0x4f, i.e. the first 80 bytes of
// CountingReader.
type TestVector struct {
	Name        string
	Plaintext   string
	KeyMaterial string
	DerivedKey  string // Hex
	Ciphertext  string // Hex, without salt and IV
	Blob        string // Base64
}

// Vectors contains golden blobs for deterministic salt and IV.
var Vectors = []TestVector{
	{
		Name:        "empty plaintext",
		Plaintext:   "",
		KeyMaterial: "same-key",
		DerivedKey:  "5b931092df816397157df86e56db774193de255d493a27517ff8324be15e384e",
		Ciphertext:  "49092e2c15131d7e8e08e34bfd408094",
		Blob:        "AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8gISIjJCUmJygpKissLS4vMDEyMzQ1Njc4OTo7PD0+P0BBQkNERUZHSElKS0xNTk9JCS4sFRMdfo4I40v9QICU",
	},
	{
		Name:        "hex private key",
		Plaintext:   "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
		KeyMaterial: "rollback-frontend-encryption-key01",
		DerivedKey:  "5047f38f234936cd6303ea18dbcc561d3a00de4708b87c4c0af1d0e3ac0d00b3",
		Ciphertext:  "6dede27f3f9de679c7e29b1edc2caf100337c6012224089513e6cbe8f1fa64ecc347b2cec3e23ff76cb96168874df51b80f7efc323dea2a21f67b614dd521165b5bf2f27203d5d7ae38f92e223a0b1cf",
		Blob:        "AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8gISIjJCUmJygpKissLS4vMDEyMzQ1Njc4OTo7PD0+P0BBQkNERUZHSElKS0xNTk9t7eJ/P53mecfimx7cLK8QAzfGASIkCJUT5svo8fpk7MNHss7D4j/3bLlhaIdN9RuA9+/DI96ioh9nthTdUhFltb8vJyA9XXrjj5LiI6Cxzw==",
	},
	{
		Name:        "unicode plaintext",
		Plaintext:   "пароль-🔑",
		KeyMaterial: "passphrase",
		DerivedKey:  "f7c9e575ffa29d32d1cedb10362ba6f2b503b35d59499260c12c90a04b2772f1",
		Ciphertext:  "2feeaca041f11fd8dc7f04da49a4d8d0129d12026a45051390e5df950eeee022",
		Blob:        "AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8gISIjJCUmJygpKissLS4vMDEyMzQ1Njc4OTo7PD0+P0BBQkNERUZHSElKS0xNTk8v7qygQfEf2Nx/BNpJpNjQEp0SAmpFBROQ5d+VDu7gIg==",
	},
}

// CountingReader yields 0x00, 0x01, 0x02, ... and wraps after 0xff.
type CountingReader struct {
	next byte
}

func (r *CountingReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.next
		r.next++
	}
	return len(p), nil
}
