package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rollbackwallet/rollbackctl/internal/crypto"
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Encrypt a private key the way registration does",
	Long: `Encrypt prints base64(salt || iv || ciphertext) for a secret, using the
configured passphrase. The secret is read from --secret, from stdin with
--stdin, or from a no-echo prompt.`,
	Example: `  rollbackctl encrypt
  echo "$PRIVATE_KEY" | rollbackctl encrypt --stdin`,
	Annotations: offline(),
	RunE:        runEncrypt,
}

var decryptCmd = &cobra.Command{
	Use:         "decrypt <blob>",
	Short:       "Decrypt a blob produced by encrypt",
	Args:        cobra.ExactArgs(1),
	Annotations: offline(),
	RunE:        runDecrypt,
}

var decodeCmd = &cobra.Command{
	Use:         "decode <blob>",
	Short:       "Show the salt, IV and ciphertext segments of a blob",
	Args:        cobra.ExactArgs(1),
	Annotations: offline(),
	RunE:        runDecode,
}

var keygenCmd = &cobra.Command{
	Use:         "keygen",
	Short:       "Generate a random encryption passphrase",
	Annotations: offline(),
	RunE:        runKeygen,
}

var (
	cryptoSecret string
	cryptoKey    string
	cryptoStdin  bool
	keygenBytes  int
)

func init() {
	rootCmd.AddCommand(encryptCmd, decryptCmd, decodeCmd, keygenCmd)

	encryptCmd.Flags().StringVarP(&cryptoSecret, "secret", "s", "",
		"Secret to encrypt (will prompt if not provided)")
	encryptCmd.Flags().BoolVar(&cryptoStdin, "stdin", false,
		"Read the secret from stdin")

	for _, cmd := range []*cobra.Command{encryptCmd, decryptCmd} {
		cmd.Flags().StringVarP(&cryptoKey, "key", "k", "",
			"Passphrase (default: configured encryption key)")
	}

	keygenCmd.Flags().IntVarP(&keygenBytes, "bytes", "b", 32,
		"Random bytes in the passphrase")
}

func keyMaterial() string {
	if cryptoKey != "" {
		return cryptoKey
	}
	return cfg.Encryption.Key
}

func runEncrypt(cmd *cobra.Command, args []string) error {
	secret, err := readSecret(cryptoSecret, cryptoStdin, "Secret: ")
	if err != nil {
		return fmt.Errorf("read secret: %w", err)
	}

	blob, err := crypto.NewEncryptor(nil).EncryptContext(cmd.Context(), secret, keyMaterial())
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success":   true,
			"encrypted": blob,
		})
		return nil
	}

	fmt.Fprintln(stdout, blob)
	return nil
}

func runDecrypt(cmd *cobra.Command, args []string) error {
	plain, err := crypto.NewEncryptor(nil).Decrypt(args[0], keyMaterial())
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success":   true,
			"plaintext": plain,
		})
		return nil
	}

	fmt.Fprintln(stdout, plain)
	return nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	blob, err := crypto.Decode(args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"salt":       hex.EncodeToString(blob.Salt),
			"iv":         hex.EncodeToString(blob.IV),
			"ciphertext": hex.EncodeToString(blob.Ciphertext),
			"length":     blob.Len(),
		})
		return nil
	}

	fmt.Fprintf(stdout, "salt       (%2d bytes): %s\n", len(blob.Salt), hex.EncodeToString(blob.Salt))
	fmt.Fprintf(stdout, "iv         (%2d bytes): %s\n", len(blob.IV), hex.EncodeToString(blob.IV))
	fmt.Fprintf(stdout, "ciphertext (%2d bytes): %s\n", len(blob.Ciphertext), hex.EncodeToString(blob.Ciphertext))
	return nil
}

func runKeygen(cmd *cobra.Command, args []string) error {
	if keygenBytes < 16 {
		return fmt.Errorf("--bytes must be at least 16, got %d", keygenBytes)
	}

	buf := make([]byte, keygenBytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("%w: %v", crypto.ErrCryptoUnavailable, err)
	}
	key := base64.RawURLEncoding.EncodeToString(buf)

	if jsonOutput {
		printJSON(map[string]interface{}{"key": key})
		return nil
	}

	fmt.Fprintln(stdout, key)
	return nil
}
