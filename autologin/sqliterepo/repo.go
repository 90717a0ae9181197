// Package sqliterepo provides the durable TokenRepo on SQLite.
//
// The schema is applied once at construction; nothing in the request
// path ever provisions storage. A repo whose database is unreachable
// reports ErrStorageUnavailable and leaves issuance to degrade.
package sqliterepo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jrsteele09/go-client-portal/autologin"
	apperrors "github.com/jrsteele09/go-client-portal/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS autologin_tokens (
    id TEXT PRIMARY KEY,
    subject_id TEXT NOT NULL,
    value TEXT NOT NULL UNIQUE,
    created_at DATETIME NOT NULL,
    expires_at DATETIME NOT NULL,
    used_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_autologin_tokens_subject_id
    ON autologin_tokens(subject_id);
`

var _ autologin.TokenRepo = (*Repo)(nil)

type Repo struct {
	db      *sql.DB
	nowTime func() time.Time
}

// New applies the token schema and returns a repo over db.
func New(db *sql.DB) (*Repo, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrStorageUnavailable, "apply token schema: %v", err)
	}
	return &Repo{db: db, nowTime: time.Now}, nil
}

// Open opens (or creates) the token database at path and applies the
// schema. WAL and a busy timeout are set through modernc's _pragma
// DSN form; without them concurrent writers surface SQLITE_BUSY
// instead of queueing.
func Open(path string) (*Repo, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrStorageUnavailable, "open token db: %v", err)
	}
	repo, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *Repo) Close() error {
	return r.db.Close()
}

func (r *Repo) Create(ctx context.Context, token *autologin.Token) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO autologin_tokens (id, subject_id, value, created_at, expires_at, used_at)
		 VALUES (?, ?, ?, ?, ?, NULL)`,
		token.ID, token.SubjectID, token.Value, token.CreatedAt.UTC(), token.ExpiresAt.UTC())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperrors.Wrapf(apperrors.ErrDuplicateValue, "create token %s", token.ID)
		}
		return apperrors.Wrapf(apperrors.ErrStorageUnavailable, "create token: %v", err)
	}
	return nil
}

func (r *Repo) FindValid(ctx context.Context, value string) (*autologin.Token, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, subject_id, value, created_at, expires_at, used_at
		 FROM autologin_tokens
		 WHERE value = ? AND used_at IS NULL AND expires_at > ?`,
		value, r.nowTime().UTC())

	var token autologin.Token
	var usedAt sql.NullTime
	err := row.Scan(&token.ID, &token.SubjectID, &token.Value, &token.CreatedAt, &token.ExpiresAt, &usedAt)
	if err == sql.ErrNoRows {
		// Expired, used and unknown values are indistinguishable here
		return nil, apperrors.ErrTokenNotValid
	}
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrStorageUnavailable, "find token: %v", err)
	}
	if usedAt.Valid {
		token.UsedAt = &usedAt.Time
	}
	return &token, nil
}

// Consume is the single conditional write that decides redemption
// races: of N concurrent calls for the same id, exactly one observes a
// row update.
func (r *Repo) Consume(ctx context.Context, id string) (autologin.ConsumeResult, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE autologin_tokens SET used_at = ? WHERE id = ? AND used_at IS NULL`,
		r.nowTime().UTC(), id)
	if err != nil {
		return autologin.AlreadyConsumed, apperrors.Wrapf(apperrors.ErrStorageUnavailable, "consume token: %v", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return autologin.AlreadyConsumed, apperrors.Wrapf(apperrors.ErrStorageUnavailable, "consume token: %v", err)
	}
	if affected == 0 {
		return autologin.AlreadyConsumed, nil
	}
	return autologin.Consumed, nil
}
