package infra

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the sqlcipher "sqlite3" database/sql driver.
	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/feedbackd/internal/domain"
)

const (
	storeDBName = "feedbackd.db"
)

// EncryptedStore implements domain.PreferenceStore and domain.DaemonRegistry
// using a SQLCipher encrypted SQLite database. Reads always hit the
// database; nothing is cached.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedStore opens (or creates) the encrypted store in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	keyHex := hex.EncodeToString(key)

	// Open with SQLCipher key as DSN parameter
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}
	// One connection serializes writers within the process.
	db.SetMaxOpenConns(1)

	// Verify encryption works by running a query
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &EncryptedStore{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// createTables creates the schema if it doesn't exist.
func (s *EncryptedStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS prefs (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS profile_records (
		app_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		record TEXT NOT NULL,
		PRIMARY KEY (app_id, seq)
	);

	CREATE TABLE IF NOT EXISTS daemon_state (
		role TEXT PRIMARY KEY,
		pid INTEGER NOT NULL,
		process_name TEXT NOT NULL,
		last_heartbeat INTEGER NOT NULL,
		app_version TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- domain.PreferenceStore implementation ---

// GetString returns the raw value for key and whether it was set.
func (s *EncryptedStore) GetString(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM prefs WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read preference %s: %w", key, err)
	}
	return value, true, nil
}

// PutString stores value under key.
func (s *EncryptedStore) PutString(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO prefs (key, value, updated_at) VALUES (?, ?, ?)`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write preference %s: %w", key, err)
	}
	return nil
}

// GetStringSet returns the records stored under key in insertion order,
// nil if there are none.
func (s *EncryptedStore) GetStringSet(key string) ([]string, error) {
	rows, err := s.db.Query(`SELECT record FROM profile_records WHERE app_id = ? ORDER BY seq`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read records for %s: %w", key, err)
	}
	defer rows.Close()

	var records []string
	for rows.Next() {
		var rec string
		if err := rows.Scan(&rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// PutStringSet replaces the records stored under key.
func (s *EncryptedStore) PutStringSet(key string, values []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM profile_records WHERE app_id = ?`, key); err != nil {
		return fmt.Errorf("failed to clear records for %s: %w", key, err)
	}
	for i, v := range values {
		if _, err := tx.Exec(`INSERT INTO profile_records (app_id, seq, record) VALUES (?, ?, ?)`,
			key, i, v); err != nil {
			return fmt.Errorf("failed to write record for %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// DeleteStringSet removes the records stored under key.
func (s *EncryptedStore) DeleteStringSet(key string) error {
	if _, err := s.db.Exec(`DELETE FROM profile_records WHERE app_id = ?`, key); err != nil {
		return fmt.Errorf("failed to delete records for %s: %w", key, err)
	}
	return nil
}

// ListStringSets returns the keys holding records, sorted.
func (s *EncryptedStore) ListStringSets() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT app_id FROM profile_records ORDER BY app_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// --- domain.DaemonRegistry implementation ---

// Register saves the daemon's PID and process name.
func (s *EncryptedStore) Register(daemon domain.Daemon) error {
	now := time.Now().Unix()

	// Auto-detect mode
	mode := string(ExecModeUser)
	if os.Geteuid() == 0 {
		mode = string(ExecModeSystem)
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO daemon_state (role, pid, process_name, last_heartbeat, app_version)
		VALUES (?, ?, ?, ?, ?)`,
		string(daemon.Role), daemon.PID, daemon.Name, now, daemon.AppVersion,
	)
	if err != nil {
		return err
	}

	// Store mode and version in meta
	_, err = s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('mode', ?)`, mode)
	if err != nil {
		return err
	}
	if daemon.AppVersion != "" {
		_, err = s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('app_version', ?)`, daemon.AppVersion)
	}
	return err
}

// UpdateHeartbeat updates timestamp for liveness check.
func (s *EncryptedStore) UpdateHeartbeat(role domain.DaemonRole) error {
	now := time.Now().Unix()
	result, err := s.db.Exec(`UPDATE daemon_state SET last_heartbeat = ? WHERE role = ?`,
		now, string(role))
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("daemon %s not registered", role)
	}
	return nil
}

// GetAll returns the registered daemon (for status command), nil if none.
func (s *EncryptedStore) GetAll() (*domain.RegistryEntry, error) {
	entry := &domain.RegistryEntry{}
	err := s.db.QueryRow(`
		SELECT pid, process_name, last_heartbeat, app_version
		FROM daemon_state WHERE role = ?`, string(domain.RoleDaemon)).
		Scan(&entry.PID, &entry.Name, &entry.LastHeartbeat, &entry.AppVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// Read mode from meta
	var mode string
	if err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'mode'`).Scan(&mode); err == nil {
		entry.Mode = mode
	}

	return entry, nil
}

// Clear removes all daemon state (for clean restart).
func (s *EncryptedStore) Clear() error {
	_, err := s.db.Exec(`DELETE FROM daemon_state`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`DELETE FROM meta WHERE key IN ('mode', 'app_version')`)
	return err
}

// Path returns the database file path.
func (s *EncryptedStore) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure EncryptedStore implements both interfaces.
var _ domain.PreferenceStore = (*EncryptedStore)(nil)
var _ domain.DaemonRegistry = (*EncryptedStore)(nil)
