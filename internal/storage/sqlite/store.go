package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/scanwatch/scanwatch/internal/alerts"
	"github.com/scanwatch/scanwatch/pkg/logger"
	_ "modernc.org/sqlite"
)

// TranscriptRecord is one stored segment transcript.
type TranscriptRecord struct {
	ID           int64     `json:"id"`
	Unixtime     int64     `json:"unixtime"`
	DurationSecs int       `json:"duration_secs"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is a SQLite-backed history of transcripts and dispatched alerts.
// The transcript files on disk remain the dedup markers; this store exists
// for the API and for operator inspection.
type Store struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewStore creates a new SQLite-based history store
func NewStore(dbPath string, log *logger.Logger) (*Store, error) {
	storeLogger := log.Named("sqlite")

	storeLogger.Info("Initializing SQLite storage", logger.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	store := &Store{db: db, logger: storeLogger}
	if err := store.initDB(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcripts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			unixtime INTEGER NOT NULL UNIQUE,
			duration_secs INTEGER NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create transcripts table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_transcripts_created_at ON transcripts(created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create transcripts index: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS alert_dispatches (
			id TEXT PRIMARY KEY,
			unixtime INTEGER NOT NULL,
			channel TEXT NOT NULL,
			recipient TEXT NOT NULL,
			matched_term TEXT NOT NULL,
			delivered BOOLEAN NOT NULL,
			sent_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create alert_dispatches table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_dispatches_unixtime ON alert_dispatches(unixtime)`)
	if err != nil {
		return fmt.Errorf("failed to create alert_dispatches index: %w", err)
	}

	return nil
}

// StoreTranscript stores a transcript record. Re-inserting an existing
// unixtime is ignored so a re-processed segment does not duplicate history.
func (s *Store) StoreTranscript(record *TranscriptRecord) (int64, error) {
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO transcripts (unixtime, duration_secs, content, created_at)
		VALUES (?, ?, ?, ?)`,
		record.Unixtime,
		record.DurationSecs,
		record.Text,
		record.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transcript: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// GetTranscripts returns stored transcripts newest-first with pagination.
func (s *Store) GetTranscripts(limit, offset int) ([]*TranscriptRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, unixtime, duration_secs, content, created_at
		FROM transcripts
		ORDER BY unixtime DESC
		LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcripts: %w", err)
	}
	defer rows.Close()

	var records []*TranscriptRecord
	for rows.Next() {
		var record TranscriptRecord
		var createdAt string
		if err := rows.Scan(&record.ID, &record.Unixtime, &record.DurationSecs, &record.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transcript row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			record.CreatedAt = t
		}
		records = append(records, &record)
	}

	return records, rows.Err()
}

// StoreDispatch stores one alert delivery outcome.
func (s *Store) StoreDispatch(d *alerts.Dispatch) error {
	_, err := s.db.Exec(
		`INSERT INTO alert_dispatches (id, unixtime, channel, recipient, matched_term, delivered, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID,
		d.Unixtime,
		string(d.Channel),
		d.Recipient,
		d.MatchedTerm,
		d.Delivered,
		d.SentAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert dispatch: %w", err)
	}
	return nil
}

// GetDispatches returns alert dispatches newest-first with pagination.
func (s *Store) GetDispatches(limit, offset int) ([]*alerts.Dispatch, error) {
	rows, err := s.db.Query(
		`SELECT id, unixtime, channel, recipient, matched_term, delivered, sent_at
		FROM alert_dispatches
		ORDER BY sent_at DESC
		LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert dispatches: %w", err)
	}
	defer rows.Close()

	var dispatches []*alerts.Dispatch
	for rows.Next() {
		var d alerts.Dispatch
		var channel, sentAt string
		if err := rows.Scan(&d.ID, &d.Unixtime, &channel, &d.Recipient, &d.MatchedTerm, &d.Delivered, &sentAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert dispatch row: %w", err)
		}
		d.Channel = alerts.Channel(channel)
		if t, err := time.Parse(time.RFC3339, sentAt); err == nil {
			d.SentAt = t
		}
		dispatches = append(dispatches, &d)
	}

	return dispatches, rows.Err()
}
