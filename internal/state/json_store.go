package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rollbackwallet/rollbackctl/internal/events"
	"github.com/rollbackwallet/rollbackctl/internal/models"
)

// profileFile is the on-disk envelope of a profile.
type profileFile struct {
	Profile *Profile `json:"profile"`

	// Store metadata
	SchemaVersion int       `json:"schema_version"`
	WrittenAt     time.Time `json:"written_at"`
	Checksum      string    `json:"checksum,omitempty"`
}

func (f profileFile) checksum() (string, error) {
	f.Checksum = ""
	data, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// JSONStore implements file-based profile storage.
type JSONStore struct {
	baseDir string
	logger  *events.Logger

	mu    sync.RWMutex
	locks *walletLocks
}

// NewJSONStore creates a JSON-based profile store.
func NewJSONStore(baseDir string, logger *events.Logger) (*JSONStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	return &JSONStore{
		baseDir: baseDir,
		logger:  logger.WithField("component", "json_state_store"),
		locks:   newWalletLocks(),
	}, nil
}

// Load reads a profile from its JSON file, falling back to the backup
// copy when the file is corrupt.
func (s *JSONStore) Load(wallet string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.statePath(wallet)

	s.logger.WithFields(map[string]interface{}{
		"wallet": wallet,
		"path":   path,
	}).Debug("Loading profile")

	profile, err := s.readFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		s.logger.WithError(err).WithField("wallet", wallet).Warn("Profile file unreadable, trying backup")

		if backup, berr := s.readFile(path + ".backup"); berr == nil {
			s.logger.Warn("Loaded profile from backup due to corruption")
			return backup, nil
		}
		return nil, ErrStateCorrupt
	}

	return profile, nil
}

func (s *JSONStore) readFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file profileFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateCorrupt, err)
	}
	if file.Profile == nil {
		return nil, fmt.Errorf("%w: missing profile", ErrStateCorrupt)
	}

	// Verify checksum if present
	if file.Checksum != "" {
		calculated, err := file.checksum()
		if err != nil {
			return nil, err
		}
		if calculated != file.Checksum {
			s.logger.WithFields(map[string]interface{}{
				"expected": file.Checksum,
				"actual":   calculated,
			}).Error("Profile checksum mismatch")
			return nil, fmt.Errorf("%w: checksum mismatch", ErrStateCorrupt)
		}
	}

	if file.SchemaVersion != CurrentSchemaVersion {
		s.logger.WithField("version", file.SchemaVersion).Warn("Profile schema version mismatch")
	}

	return file.Profile, nil
}

// Save writes a profile atomically, keeping the previous file as a backup.
func (s *JSONStore) Save(wallet string, profile *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.statePath(wallet)

	s.logger.WithFields(map[string]interface{}{
		"wallet":  wallet,
		"backups": len(profile.BackupWallets),
		"history": len(profile.History),
	}).Debug("Saving profile")

	file := profileFile{
		Profile:       profile,
		SchemaVersion: CurrentSchemaVersion,
		WrittenAt:     time.Now().UTC(),
	}

	sum, err := file.checksum()
	if err != nil {
		return fmt.Errorf("marshal profile for checksum: %w", err)
	}
	file.Checksum = sum

	jsonData, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal profile with checksum: %w", err)
	}

	// Create backup of existing file
	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".backup"); err != nil {
			s.logger.WithError(err).Warn("Failed to create backup")
		}
	}

	// Write atomically
	tmpPath := path + ".tmp"
	if err := writeSynced(tmpPath, jsonData); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename state file: %w", err)
	}

	return nil
}

// Reset removes the profile of a wallet.
func (s *JSONStore) Reset(wallet string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.WithField("wallet", wallet).Info("Resetting profile")

	path := s.statePath(wallet)
	for _, p := range []string{path, path + ".backup"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", filepath.Base(p), err)
		}
	}

	return nil
}

// List returns all wallets with a profile.
func (s *JSONStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read state directory: %w", err)
	}

	var wallets []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if filepath.Ext(name) == ".json" {
			wallets = append(wallets, strings.TrimSuffix(name, ".json"))
		}
	}

	return wallets, nil
}

// Lock acquires a lock for a wallet.
func (s *JSONStore) Lock(wallet string) (UnlockFunc, error) {
	return s.locks.acquire(models.NormalizeAddress(wallet), lockTimeout)
}

// Migrate transfers all profiles to another store.
func (s *JSONStore) Migrate(target Store) error {
	return migrate(s, target, s.logger)
}

// Close releases resources.
func (s *JSONStore) Close() error {
	return nil
}

// Helper methods

func (s *JSONStore) statePath(wallet string) string {
	return filepath.Join(s.baseDir, models.NormalizeAddress(wallet)+".json")
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
