// Package directory maps human-readable handles to chat addresses. It is the
// registration record of who may receive signals; identities are only ever
// removed by an explicit administrative call, never by the flow itself.
package directory

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/firstsignal/signalbot/pkg/signal"
)

type Identity struct {
	Address   signal.Address
	Handle    string
	CreatedAt time.Time
}

type Directory struct {
	db *sql.DB
}

func Open(path string) (*Directory, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create directory db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open directory db: %w", err)
	}

	d := &Directory{db: db}
	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init directory schema: %w", err)
	}
	return d, nil
}

func (d *Directory) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS registered_users (
		chat_id INTEGER PRIMARY KEY,
		handle TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_registered_users_handle ON registered_users(handle);
	`
	_, err := d.db.Exec(schema)
	return err
}

func (d *Directory) Close() error {
	return d.db.Close()
}

func (d *Directory) Health() error {
	return d.db.Ping()
}

// IsRegistered reports whether the address has completed registration.
func (d *Directory) IsRegistered(addr signal.Address) bool {
	var one int
	err := d.db.QueryRow(`SELECT 1 FROM registered_users WHERE chat_id = ?`, int64(addr)).Scan(&one)
	return err == nil
}

// Register records an address with an optional handle. Re-registering an
// already-registered address succeeds without duplication.
func (d *Directory) Register(addr signal.Address, handle string) error {
	_, err := d.db.Exec(`
		INSERT INTO registered_users (chat_id, handle, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(chat_id) DO NOTHING`,
		int64(addr), nullableHandle(handle), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("register chat %d: %w", addr, err)
	}
	return nil
}

// FindAddressByHandle resolves a handle case-insensitively, tolerating a
// leading @. A miss is a normal outcome, not an error.
func (d *Directory) FindAddressByHandle(handle string) (signal.Address, bool) {
	normalized := NormalizeHandle(handle)
	if normalized == "" {
		return 0, false
	}

	var chatID int64
	err := d.db.QueryRow(`
		SELECT chat_id FROM registered_users
		WHERE handle IS NOT NULL AND lower(ltrim(handle, '@')) = ?`,
		normalized,
	).Scan(&chatID)
	if err != nil {
		return 0, false
	}
	return signal.Address(chatID), true
}

// HandleByAddress returns the handle registered for an address, if any.
func (d *Directory) HandleByAddress(addr signal.Address) (string, bool) {
	var handle sql.NullString
	err := d.db.QueryRow(`SELECT handle FROM registered_users WHERE chat_id = ?`, int64(addr)).Scan(&handle)
	if err != nil || !handle.Valid || handle.String == "" {
		return "", false
	}
	return handle.String, true
}

// UpdateHandle replaces the handle for an existing identity.
func (d *Directory) UpdateHandle(addr signal.Address, handle string) error {
	res, err := d.db.Exec(`UPDATE registered_users SET handle = ? WHERE chat_id = ?`,
		nullableHandle(handle), int64(addr))
	if err != nil {
		return fmt.Errorf("update handle for chat %d: %w", addr, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("chat %d is not registered", addr)
	}
	return nil
}

// Unregister removes an identity. Administrative use only.
func (d *Directory) Unregister(addr signal.Address) error {
	_, err := d.db.Exec(`DELETE FROM registered_users WHERE chat_id = ?`, int64(addr))
	if err != nil {
		return fmt.Errorf("unregister chat %d: %w", addr, err)
	}
	return nil
}

// All returns every registered identity, oldest first.
func (d *Directory) All() ([]Identity, error) {
	rows, err := d.db.Query(`SELECT chat_id, handle, created_at FROM registered_users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Identity
	for rows.Next() {
		var chatID int64
		var handle sql.NullString
		var createdAt string
		if err := rows.Scan(&chatID, &handle, &createdAt); err != nil {
			return nil, err
		}
		ts, _ := time.Parse(time.RFC3339, createdAt)
		out = append(out, Identity{
			Address:   signal.Address(chatID),
			Handle:    handle.String,
			CreatedAt: ts,
		})
	}
	return out, rows.Err()
}

// NormalizeHandle lowercases and strips the leading @ for comparisons.
func NormalizeHandle(handle string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(handle)), "@")
}

func nullableHandle(handle string) interface{} {
	h := strings.TrimSpace(handle)
	if h == "" {
		return nil
	}
	return h
}
