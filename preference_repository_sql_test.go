package chatsvc

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shaharia-lab/chatsvc/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func setupTestDB(t *testing.T) *SQLPreferenceRepository {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "settings.db") + "?_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	repo := NewSQLPreferenceRepository(db, DialectSQLite, observability.NewNullLogger())
	require.NoError(t, repo.InitSchema(context.Background()))
	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestParseDialect(t *testing.T) {
	tests := []struct {
		driver  string
		want    Dialect
		wantErr bool
	}{
		{"postgres", DialectPostgres, false},
		{"PostgreSQL", DialectPostgres, false},
		{"sqlite3", DialectSQLite, false},
		{"sqlite", DialectSQLite, false},
		{"mysql", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			got, err := ParseDialect(tt.driver)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLPreferenceRepository{dialect: DialectPostgres}
	lite := &SQLPreferenceRepository{dialect: DialectSQLite}

	query := `INSERT INTO t (a, b, c) VALUES (?, ?, ?)`
	assert.Equal(t, `INSERT INTO t (a, b, c) VALUES ($1, $2, $3)`, pg.rebind(query))
	assert.Equal(t, query, lite.rebind(query))
}

func TestInitSchema(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	var count int
	err := repo.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='user_settings'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// running twice is harmless
	require.NoError(t, repo.InitSchema(ctx))
}

func TestSQLPreferenceRepository_GetNotFound(t *testing.T) {
	repo := setupTestDB(t)

	pref, err := repo.Get(context.Background(), 99)
	assert.Nil(t, pref)
	assert.ErrorIs(t, err, ErrPreferenceNotFound)
}

func TestSQLPreferenceRepository_CreateAndGet(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	want := UserModelPreference{UserID: 42, PreferredModel: ModelYandexGPTPro, Temperature: 0.3, MaxTokens: 500}
	require.NoError(t, repo.Create(ctx, want))

	got, err := repo.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	err = repo.Create(ctx, want)
	assert.ErrorIs(t, err, ErrPreferenceExists)
}

func TestSQLPreferenceRepository_GetOrCreate(t *testing.T) {
	tests := []struct {
		name     string
		existing *UserModelPreference
		want     UserModelPreference
	}{
		{
			name: "new user gets defaults",
			want: DefaultPreference(99),
		},
		{
			name:     "existing row wins over defaults",
			existing: &UserModelPreference{UserID: 99, PreferredModel: ModelLlama8B, Temperature: 0.9, MaxTokens: 100},
			want:     UserModelPreference{UserID: 99, PreferredModel: ModelLlama8B, Temperature: 0.9, MaxTokens: 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := setupTestDB(t)
			ctx := context.Background()

			if tt.existing != nil {
				require.NoError(t, repo.Create(ctx, *tt.existing))
			}

			got, err := repo.GetOrCreate(ctx, 99, DefaultPreference(99))
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)

			var rows int
			require.NoError(t, repo.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM user_settings WHERE user_id = 99").Scan(&rows))
			assert.Equal(t, 1, rows)
		})
	}
}

func TestSQLPreferenceRepository_ConcurrentGetOrCreate(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	const callers = 16
	results := make([]*UserModelPreference, callers)

	var g errgroup.Group
	for i := 0; i < callers; i++ {
		i := i
		g.Go(func() error {
			pref, err := repo.GetOrCreate(ctx, 7, DefaultPreference(7))
			results[i] = pref
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, pref := range results {
		assert.Equal(t, DefaultPreference(7), *pref)
	}

	var rows int
	require.NoError(t, repo.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM user_settings WHERE user_id = 7").Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestSQLPreferenceRepository_PostgresRaceRereads(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSQLPreferenceRepository(db, DialectPostgres, nil)
	selectSQL := regexp.QuoteMeta(`SELECT user_id, preferred_model, temperature, max_tokens FROM user_settings WHERE user_id = $1`)
	insertSQL := regexp.QuoteMeta(`INSERT INTO user_settings (user_id, preferred_model, temperature, max_tokens) VALUES ($1, $2, $3, $4)`)
	columns := []string{"user_id", "preferred_model", "temperature", "max_tokens"}

	mock.ExpectQuery(selectSQL).WithArgs(int64(5)).WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(insertSQL).
		WithArgs(int64(5), "llama", 0.6, int64(2000)).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectQuery(selectSQL).WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(int64(5), "yandexgpt", 0.2, int64(800)))

	got, err := repo.GetOrCreate(context.Background(), 5, DefaultPreference(5))
	require.NoError(t, err)
	assert.Equal(t, UserModelPreference{UserID: 5, PreferredModel: ModelYandexGPTPro, Temperature: 0.2, MaxTokens: 800}, *got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLPreferenceRepository_Errors(t *testing.T) {
	dbErr := errors.New("connection refused")

	tests := []struct {
		name  string
		setup func(mock sqlmock.Sqlmock)
		call  func(repo *SQLPreferenceRepository) error
	}{
		{
			name: "get fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT").WillReturnError(dbErr)
			},
			call: func(repo *SQLPreferenceRepository) error {
				_, err := repo.Get(context.Background(), 1)
				return err
			},
		},
		{
			name: "create fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT").WillReturnError(dbErr)
			},
			call: func(repo *SQLPreferenceRepository) error {
				return repo.Create(context.Background(), DefaultPreference(1))
			},
		},
		{
			name: "get or create fails on insert",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT").WillReturnError(sql.ErrNoRows)
				mock.ExpectExec("INSERT").WillReturnError(dbErr)
			},
			call: func(repo *SQLPreferenceRepository) error {
				_, err := repo.GetOrCreate(context.Background(), 1, DefaultPreference(1))
				return err
			},
		},
		{
			name: "init schema fails",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TABLE IF NOT EXISTS user_settings").WillReturnError(dbErr)
			},
			call: func(repo *SQLPreferenceRepository) error {
				return repo.InitSchema(context.Background())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.setup(mock)
			repo := NewSQLPreferenceRepository(db, DialectPostgres, nil)

			err = tt.call(repo)
			assert.ErrorIs(t, err, dbErr)
			assert.NotErrorIs(t, err, ErrPreferenceNotFound)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"postgres unique", &pq.Error{Code: "23505"}, true},
		{"postgres other", &pq.Error{Code: "23503"}, false},
		{"plain", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}

func TestSQLPreferenceRepository_ParallelUsers(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for userID := int64(1); userID <= 5; userID++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := repo.GetOrCreate(ctx, id, DefaultPreference(id))
			assert.NoError(t, err)
		}(userID)
	}
	wg.Wait()

	var rows int
	require.NoError(t, repo.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM user_settings").Scan(&rows))
	assert.Equal(t, 5, rows)
}
