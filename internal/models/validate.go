package models

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Use a single instance of Validate, it caches struct info
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON names so errors match the wire payload
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterStructValidation(func(sl validator.StructLevel) {
		req := sl.Current().Interface().(RegisterRequest)
		validateBackups(sl, req.WalletAddress, req.BackupWallets)
	}, RegisterRequest{})

	v.RegisterStructValidation(func(sl validator.StructLevel) {
		req := sl.Current().Interface().(UpdateBackupsRequest)
		validateBackups(sl, req.WalletAddress, req.BackupWallets)
	}, UpdateBackupsRequest{})

	return v
}

// validateBackups checks rules spanning the whole backup set: shares
// add up to 100, no duplicates, and the primary wallet is not its own
// backup.
func validateBackups(sl validator.StructLevel, wallet string, backups []BackupWallet) {
	if len(backups) == 0 {
		return
	}

	total := 0
	seen := make(map[string]bool, len(backups))
	primary := NormalizeAddress(wallet)

	for _, b := range backups {
		total += b.Percentage

		addr := NormalizeAddress(b.Address)
		if addr == primary {
			sl.ReportError(backups, "backupWallets", "BackupWallets", "not_primary", "")
		}
		if seen[addr] {
			sl.ReportError(backups, "backupWallets", "BackupWallets", "unique", "address")
		}
		seen[addr] = true
	}

	if total != 100 {
		sl.ReportError(backups, "backupWallets", "BackupWallets", "percent_total", "100")
	}
}

// Validate checks a request payload against its validation rules.
// Rule failures are returned as *ValidationError.
func Validate(payload interface{}) error {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field: fieldPath(fe.Namespace()),
			Rule:  fe.Tag(),
			Param: fe.Param(),
		})
	}

	return out
}

// Stands in for the encrypted key when a registration is checked
// before encryption.
const pendingKeyPlaceholder = "AA=="

// ValidateRegistration checks every rule of req except the encrypted
// private key, which may still be empty.
func ValidateRegistration(req RegisterRequest) error {
	if req.EncryptedPrivateKey == "" {
		req.EncryptedPrivateKey = pendingKeyPlaceholder
	}
	return Validate(req)
}

// ValidAddress reports whether s is a 0x-prefixed 20-byte hex address.
func ValidAddress(s string) bool {
	return validate.Var(s, "required,eth_addr") == nil
}

// fieldPath strips the top-level struct name from a namespace.
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}
