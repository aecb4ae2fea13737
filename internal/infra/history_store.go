package infra

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/drowsyguard/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const historyDBName = "history.db"

// HistoryStore implements domain.SessionStore using a SQLCipher encrypted
// SQLite database.
type HistoryStore struct {
	db     *sql.DB
	dbPath string
}

// NewHistoryStore opens (or creates) the encrypted session history.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewHistoryStore(dataDir string, key []byte) (*HistoryStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, historyDBName)
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, hex.EncodeToString(key))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	// With a wrong key the schema step is the first read and fails.
	store := &HistoryStore{db: db, dbPath: dbPath}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (s *HistoryStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL,
		frames INTEGER NOT NULL,
		alarm_ticks INTEGER NOT NULL,
		peak_score INTEGER NOT NULL,
		end_reason TEXT NOT NULL,
		rss_bytes INTEGER NOT NULL DEFAULT 0,
		cpu_percent REAL NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS sessions_started_at ON sessions (started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record saves a finished session. Re-recording an ID overwrites it.
func (s *HistoryStore) Record(summary domain.SessionSummary) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sessions
			(id, started_at, ended_at, frames, alarm_ticks, peak_score, end_reason, rss_bytes, cpu_percent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.ID,
		summary.StartedAt.UnixNano(),
		summary.EndedAt.UnixNano(),
		int64(summary.Frames),
		summary.AlarmTicks,
		summary.PeakScore,
		string(summary.EndReason),
		int64(summary.Resources.RSSBytes),
		summary.Resources.CPUPercent,
	)
	if err != nil {
		return fmt.Errorf("failed to record session %s: %w", summary.ID, err)
	}
	return nil
}

// Recent returns up to limit sessions, newest first. A limit <= 0 returns all.
func (s *HistoryStore) Recent(limit int) ([]domain.SessionSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT id, started_at, ended_at, frames, alarm_ticks, peak_score, end_reason, rss_bytes, cpu_percent
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SessionSummary
	for rows.Next() {
		var (
			sum            domain.SessionSummary
			started, ended int64
			frames, rss    int64
			reason         string
		)
		if err := rows.Scan(&sum.ID, &started, &ended, &frames, &sum.AlarmTicks, &sum.PeakScore,
			&reason, &rss, &sum.Resources.CPUPercent); err != nil {
			return nil, err
		}
		sum.StartedAt = time.Unix(0, started)
		sum.EndedAt = time.Unix(0, ended)
		sum.Frames = uint64(frames)
		sum.EndReason = domain.EndReason(reason)
		sum.Resources.RSSBytes = uint64(rss)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Path returns the database file path.
func (s *HistoryStore) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *HistoryStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure HistoryStore implements domain.SessionStore.
var _ domain.SessionStore = (*HistoryStore)(nil)
