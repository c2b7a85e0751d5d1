// Package sqlitestore provides a SQLite-backed SessionStore so that
// tokens survive process restarts.
package sqlitestore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/telenordigital/connect-go/pkg/connect"
)

type Store struct {
	db *sql.DB
}

var _ connect.SessionStore = (*Store)(nil)

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			account_id            TEXT PRIMARY KEY,
			access_token          TEXT,
			access_token_expiry   INTEGER,
			refresh_token         TEXT,
			refresh_token_expiry  INTEGER,
			id_token              TEXT
		);`,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to init sessions table: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveSession(accountID string, session *connect.Session) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (account_id, access_token, access_token_expiry, refresh_token, refresh_token_expiry, id_token)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6)
		ON CONFLICT (account_id) DO UPDATE SET
			access_token=?2, access_token_expiry=?3, refresh_token=?4, refresh_token_expiry=?5, id_token=?6;`,
		accountID,
		session.AccessToken,
		unixOrZero(session.AccessTokenExpiry),
		session.RefreshToken,
		unixOrZero(session.RefreshTokenExpiry),
		session.IDToken,
	)
	if err != nil {
		return fmt.Errorf("unable to save session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(accountID string) (*connect.Session, error) {
	row := s.db.QueryRow(`
		SELECT access_token, access_token_expiry, refresh_token, refresh_token_expiry, id_token
		FROM sessions
		WHERE account_id=?1;`,
		accountID,
	)

	var session connect.Session
	var accessExpiry, refreshExpiry int64
	err := row.Scan(
		&session.AccessToken,
		&accessExpiry,
		&session.RefreshToken,
		&refreshExpiry,
		&session.IDToken,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load session: %w", err)
	}

	session.AccessTokenExpiry = timeOrZero(accessExpiry)
	session.RefreshTokenExpiry = timeOrZero(refreshExpiry)
	return &session, nil
}

func (s *Store) DeleteSession(accountID string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE account_id=?1;`, accountID); err != nil {
		return fmt.Errorf("unable to delete session: %w", err)
	}
	return nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(unix int64) time.Time {
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}
