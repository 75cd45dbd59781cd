// Package history keeps a local sqlite log of successful mints.
// The contract remains the source of truth for eligibility.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Mint is one recorded mint.
type Mint struct {
	ID                 int64     `json:"id"`
	Address            string    `json:"address"`
	City               string    `json:"city"`
	Date               string    `json:"date"`
	TokenID            string    `json:"tokenId"`
	TokenIDPlaceholder bool      `json:"tokenIdPlaceholder"`
	TxHash             string    `json:"txHash"`
	TokenURI           string    `json:"tokenUri"`
	ImageURI           string    `json:"imageUri"`
	ImageSource        string    `json:"imageSource"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Store is the sqlite-backed mint history.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path and applies migrations.
// ":memory:" gives a private in-memory database.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("history: create dir: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	s := New(db, logger)
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return s, nil
}

func New(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Record inserts m and returns its row id. Addresses are stored lower-cased.
func (s *Store) Record(ctx context.Context, m Mint) (int64, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO mints (address, city, date, token_id, token_id_placeholder, tx_hash, token_uri, image_uri, image_source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, strings.ToLower(m.Address), m.City, m.Date, m.TokenID, m.TokenIDPlaceholder, m.TxHash, m.TokenURI, m.ImageURI, m.ImageSource, m.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("history: record mint: %w", err)
	}
	return res.LastInsertId()
}

// ListByAddress returns the mints of address, newest first, at most limit rows.
func (s *Store) ListByAddress(ctx context.Context, address string, limit int) ([]Mint, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, address, city, date, token_id, token_id_placeholder, tx_hash, token_uri, image_uri, image_source, created_at
		FROM mints
		WHERE address = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, strings.ToLower(address), limit)
	if err != nil {
		return nil, fmt.Errorf("history: list mints: %w", err)
	}
	defer rows.Close()

	var out []Mint
	for rows.Next() {
		var (
			m                  Mint
			tokenURI, imageURI sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Address, &m.City, &m.Date, &m.TokenID, &m.TokenIDPlaceholder,
			&m.TxHash, &tokenURI, &imageURI, &m.ImageSource, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan mint: %w", err)
		}
		m.TokenURI = tokenURI.String
		m.ImageURI = imageURI.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// HasMinted reports whether a mint for (address, city, date) was recorded locally.
func (s *Store) HasMinted(ctx context.Context, address, city, date string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM mints WHERE address = ? AND city = ? AND date = ?",
		strings.ToLower(address), city, date,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("history: lookup mint: %w", err)
	}
	return n > 0, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
