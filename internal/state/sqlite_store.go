package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rollbackwallet/rollbackctl/internal/events"
	"github.com/rollbackwallet/rollbackctl/internal/models"
)

// SQLiteStore implements SQLite-based profile storage.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger
	locks  *walletLocks
}

// NewSQLiteStore creates a SQLite profile store.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "sqlite_state_store"),
		locks:  newWalletLocks(),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

// initialize creates tables and indexes.
func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS profiles (
        wallet TEXT PRIMARY KEY,
        encrypted_key TEXT NOT NULL DEFAULT '',
        inactivity_days INTEGER NOT NULL DEFAULT 0,
        email TEXT NOT NULL DEFAULT '',
        user_id TEXT NOT NULL DEFAULT '',
        history TEXT,
        registered_at TIMESTAMP,
        updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS backup_wallets (
        wallet TEXT NOT NULL,
        position INTEGER NOT NULL,
        address TEXT NOT NULL,
        percentage INTEGER NOT NULL,
        label TEXT NOT NULL DEFAULT '',
        PRIMARY KEY (wallet, position),
        FOREIGN KEY (wallet) REFERENCES profiles(wallet) ON DELETE CASCADE
    );

    CREATE INDEX IF NOT EXISTS idx_backup_wallets_wallet ON backup_wallets(wallet);

    CREATE TABLE IF NOT EXISTS schema_info (
        version INTEGER PRIMARY KEY
    );

    INSERT OR IGNORE INTO schema_info (version) VALUES (?);
    `

	if _, err := s.db.Exec(schema, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Load retrieves a profile from the database.
func (s *SQLiteStore) Load(wallet string) (*Profile, error) {
	wallet = models.NormalizeAddress(wallet)
	s.logger.WithField("wallet", wallet).Debug("Loading profile from SQLite")

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	profile := Profile{WalletAddress: wallet}
	var history sql.NullString
	var registeredAt, updatedAt sql.NullTime

	err = tx.QueryRow(`
        SELECT encrypted_key, inactivity_days, email, user_id, history, registered_at, updated_at
        FROM profiles
        WHERE wallet = ?
    `, wallet).Scan(&profile.EncryptedPrivateKey, &profile.InactivityDays, &profile.Email,
		&profile.UserID, &history, &registeredAt, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}

	if registeredAt.Valid {
		profile.RegisteredAt = registeredAt.Time.UTC()
	}
	if updatedAt.Valid {
		profile.UpdatedAt = updatedAt.Time.UTC()
	}
	if history.Valid && history.String != "" {
		if err := json.Unmarshal([]byte(history.String), &profile.History); err != nil {
			return nil, fmt.Errorf("%w: history: %v", ErrStateCorrupt, err)
		}
	}

	rows, err := tx.Query(`
        SELECT address, percentage, label
        FROM backup_wallets
        WHERE wallet = ?
        ORDER BY position
    `, wallet)
	if err != nil {
		return nil, fmt.Errorf("query backup wallets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b models.BackupWallet
		if err := rows.Scan(&b.Address, &b.Percentage, &b.Label); err != nil {
			return nil, fmt.Errorf("scan backup wallet: %w", err)
		}
		profile.BackupWallets = append(profile.BackupWallets, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backup wallets: %w", err)
	}

	return &profile, nil
}

// Save persists a profile in one transaction.
func (s *SQLiteStore) Save(wallet string, profile *Profile) error {
	wallet = models.NormalizeAddress(wallet)
	s.logger.WithFields(map[string]interface{}{
		"wallet":  wallet,
		"backups": len(profile.BackupWallets),
		"history": len(profile.History),
	}).Debug("Saving profile to SQLite")

	var history interface{}
	if len(profile.History) > 0 {
		data, err := json.Marshal(profile.History)
		if err != nil {
			return fmt.Errorf("marshal history: %w", err)
		}
		history = string(data)
	}

	var registeredAt interface{}
	if !profile.RegisteredAt.IsZero() {
		registeredAt = profile.RegisteredAt.UTC()
	}
	updatedAt := profile.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
        INSERT INTO profiles (wallet, encrypted_key, inactivity_days, email, user_id, history, registered_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(wallet) DO UPDATE SET
            encrypted_key = excluded.encrypted_key,
            inactivity_days = excluded.inactivity_days,
            email = excluded.email,
            user_id = excluded.user_id,
            history = excluded.history,
            registered_at = excluded.registered_at,
            updated_at = excluded.updated_at
    `, wallet, profile.EncryptedPrivateKey, profile.InactivityDays, profile.Email,
		profile.UserID, history, registeredAt, updatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM backup_wallets WHERE wallet = ?", wallet); err != nil {
		return fmt.Errorf("delete old backup wallets: %w", err)
	}

	stmt, err := tx.Prepare(`
        INSERT INTO backup_wallets (wallet, position, address, percentage, label)
        VALUES (?, ?, ?, ?, ?)
    `)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, b := range profile.BackupWallets {
		if _, err := stmt.Exec(wallet, i, b.Address, b.Percentage, b.Label); err != nil {
			return fmt.Errorf("insert backup wallet %s: %w", b.Address, err)
		}
	}

	return tx.Commit()
}

// Reset removes the profile of a wallet.
func (s *SQLiteStore) Reset(wallet string) error {
	wallet = models.NormalizeAddress(wallet)
	s.logger.WithField("wallet", wallet).Info("Resetting profile in SQLite")

	if _, err := s.db.Exec("DELETE FROM profiles WHERE wallet = ?", wallet); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}

	return nil
}

// List returns all wallets.
func (s *SQLiteStore) List() ([]string, error) {
	rows, err := s.db.Query("SELECT wallet FROM profiles ORDER BY wallet")
	if err != nil {
		return nil, fmt.Errorf("query wallets: %w", err)
	}
	defer rows.Close()

	var wallets []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}

	return wallets, rows.Err()
}

// Lock acquires a lock for a wallet.
func (s *SQLiteStore) Lock(wallet string) (UnlockFunc, error) {
	return s.locks.acquire(models.NormalizeAddress(wallet), lockTimeout)
}

// Migrate transfers all profiles to another store.
func (s *SQLiteStore) Migrate(target Store) error {
	return migrate(s, target, s.logger)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
