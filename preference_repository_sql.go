package chatsvc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/shaharia-lab/chatsvc/observability"
)

// Dialect selects the SQL flavour of SQLPreferenceRepository.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

const pqUniqueViolation = "23505"

// ParseDialect maps a database/sql driver name onto a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pq":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", driver)
}

// SQLPreferenceRepository stores preferences in the user_settings table.
type SQLPreferenceRepository struct {
	db      *sql.DB
	dialect Dialect
	logger  observability.Logger
}

// NewSQLPreferenceRepository wraps db. The schema is not created here; call InitSchema
// or run the migrate command first.
func NewSQLPreferenceRepository(db *sql.DB, dialect Dialect, logger observability.Logger) *SQLPreferenceRepository {
	return &SQLPreferenceRepository{
		db:      db,
		dialect: dialect,
		logger:  observability.OrNull(logger),
	}
}

// InitSchema creates user_settings if it doesn't exist.
func (r *SQLPreferenceRepository) InitSchema(ctx context.Context) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS user_settings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL UNIQUE,
		preferred_model TEXT NOT NULL,
		temperature REAL NOT NULL,
		max_tokens INTEGER NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`

	if r.dialect == DialectPostgres {
		createTableSQL = `
		CREATE TABLE IF NOT EXISTS user_settings (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL UNIQUE,
			preferred_model TEXT NOT NULL,
			temperature DOUBLE PRECISION NOT NULL,
			max_tokens BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`
	}

	if _, err := r.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create user_settings table: %w", err)
	}
	return nil
}

// Get returns the user's row or ErrPreferenceNotFound.
func (r *SQLPreferenceRepository) Get(ctx context.Context, userID int64) (*UserModelPreference, error) {
	query := r.rebind(`SELECT user_id, preferred_model, temperature, max_tokens FROM user_settings WHERE user_id = ?`)

	var pref UserModelPreference
	var model string
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&pref.UserID, &model, &pref.Temperature, &pref.MaxTokens)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPreferenceNotFound
		}
		return nil, fmt.Errorf("failed to query preference (user_id: %d): %w", userID, err)
	}
	pref.PreferredModel = ModelType(model)

	return &pref, nil
}

// Create inserts pref. A unique violation on user_id becomes ErrPreferenceExists.
func (r *SQLPreferenceRepository) Create(ctx context.Context, pref UserModelPreference) error {
	query := r.rebind(`INSERT INTO user_settings (user_id, preferred_model, temperature, max_tokens) VALUES (?, ?, ?, ?)`)

	_, err := r.db.ExecContext(ctx, query, pref.UserID, string(pref.PreferredModel), pref.Temperature, pref.MaxTokens)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrPreferenceExists
		}
		return fmt.Errorf("failed to insert preference (user_id: %d): %w", pref.UserID, err)
	}
	return nil
}

// GetOrCreate reads the user's row and inserts defaults when absent. If another writer
// inserts between the read and the insert, the unique constraint rejects ours and the
// winner's row is re-read.
func (r *SQLPreferenceRepository) GetOrCreate(ctx context.Context, userID int64, defaults UserModelPreference) (*UserModelPreference, error) {
	pref, err := r.Get(ctx, userID)
	if err == nil {
		return pref, nil
	}
	if !errors.Is(err, ErrPreferenceNotFound) {
		return nil, err
	}

	defaults.UserID = userID
	err = r.Create(ctx, defaults)
	switch {
	case err == nil:
		r.logger.WithFields(map[string]interface{}{
			"user_id": userID,
			"model":   defaults.PreferredModel,
		}).Info("created default preference")
		return &defaults, nil
	case errors.Is(err, ErrPreferenceExists):
		r.logger.WithFields(map[string]interface{}{"user_id": userID}).Debug("lost preference create race, re-reading")
		return r.Get(ctx, userID)
	default:
		return nil, err
	}
}

// Close closes the database connection
func (r *SQLPreferenceRepository) Close() error {
	return r.db.Close()
}

// rebind turns ? placeholders into $n for postgres.
func (r *SQLPreferenceRepository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
