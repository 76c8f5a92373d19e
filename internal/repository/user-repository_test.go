package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"regbot/config"
	"regbot/internal/domain"
	"regbot/traits/database"
)

func newTestRepository(t *testing.T) (*UserRepository, *sql.DB) {
	t.Helper()
	cfg := &config.Config{
		DBDriver:        config.DriverSQLite,
		DBPath:          t.TempDir() + "/",
		DBName:          "registrations",
		MaxOpenConns:    4,
		ConnMaxLifetime: time.Minute,
	}
	db, err := database.InitDatabase(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.NewSchema(db, cfg.DBDriver, zap.NewNop()).EnsureSchema(context.Background()))
	return NewUserRepository(db, zap.NewNop()), db
}

func sampleRecord() domain.UserRecord {
	return domain.UserRecord{
		FirstName:           "Ivan",
		LastName:            "Petrov",
		Patronymic:          "Ivanovich",
		CustomerPhone:       "+1000000",
		ContactPhone:        "+2000000",
		OrganizationName:    "Acme",
		SocialMediaPlatform: "Telegram",
		SocialMediaHandle:   "@ivan",
	}
}

func requireNoConnections(t *testing.T, db *sql.DB) {
	t.Helper()
	stats := db.Stats()
	require.Zero(t, stats.InUse, "connections still in use")
	require.Zero(t, stats.Idle, "idle connections retained")
}

func TestInsert_StoresRecordVerbatim(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	id, err := repo.Insert(ctx, sampleRecord())
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	stored, err := repo.GetUserByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, &domain.StoredUser{ID: 1, UserRecord: sampleRecord()}, stored)

	count, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
	requireNoConnections(t, db)
}

func TestInsert_EmptyPatronymicIsNull(t *testing.T) {
	repo, db := newTestRepository(t)
	rec := sampleRecord()
	rec.Patronymic = ""

	id, err := repo.Insert(context.Background(), rec)
	require.NoError(t, err)

	var patronymic sql.NullString
	require.NoError(t, db.QueryRow("SELECT patronymic FROM users WHERE id = ?", id).Scan(&patronymic))
	require.False(t, patronymic.Valid)
}

func TestInsert_ValuesAreBoundNotConcatenated(t *testing.T) {
	repo, _ := newTestRepository(t)
	rec := sampleRecord()
	rec.OrganizationName = "Acme'); DROP TABLE users; --"

	id, err := repo.Insert(context.Background(), rec)
	require.NoError(t, err)

	stored, err := repo.GetUserByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, rec.OrganizationName, stored.OrganizationName)
}

func TestInsert_FailureLeavesNoRow(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	_, err := db.Exec(`
		CREATE TRIGGER fail_broken_insert AFTER INSERT ON users
		WHEN NEW.organization_name = 'Broken'
		BEGIN
			SELECT RAISE(ABORT, 'simulated failure');
		END;`)
	require.NoError(t, err)

	rec := sampleRecord()
	rec.OrganizationName = "Broken"
	_, err = repo.Insert(ctx, rec)
	require.Error(t, err)
	require.True(t, database.IsKind(err, database.ErrorInsert))
	require.Contains(t, err.Error(), "simulated failure")

	count, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
	requireNoConnections(t, db)

	// The store stays usable after a failed insert.
	_, err = repo.Insert(ctx, sampleRecord())
	require.NoError(t, err)
}

func TestInsert_IncompleteRecord(t *testing.T) {
	repo, db := newTestRepository(t)
	rec := sampleRecord()
	rec.ContactPhone = ""

	_, err := repo.Insert(context.Background(), rec)
	require.True(t, database.IsKind(err, database.ErrorInsert))
	require.True(t, errors.Is(err, domain.ErrIncompleteRecord))

	count, err := repo.CountUsers(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
	requireNoConnections(t, db)
}

func TestInsert_ConnectionError(t *testing.T) {
	repo, db := newTestRepository(t)
	require.NoError(t, db.Close())

	_, err := repo.Insert(context.Background(), sampleRecord())
	require.True(t, database.IsKind(err, database.ErrorConnection))
}

func TestInsert_CancelledContext(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.Insert(ctx, sampleRecord())
	require.Error(t, err)

	count, err := repo.CountUsers(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
	requireNoConnections(t, db)
}

func TestInsert_Concurrent(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	ids := make(chan int64, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := sampleRecord()
			rec.SocialMediaHandle = fmt.Sprintf("@user%d", i)
			id, err := repo.Insert(ctx, rec)
			if err != nil {
				errs <- err
				return
			}
			ids <- id
		}(i)
	}
	wg.Wait()
	close(ids)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	seen := map[int64]bool{}
	for id := range ids {
		require.False(t, seen[id])
		seen[id] = true
	}
	require.Len(t, seen, n)

	users, err := repo.ListUsers(ctx, 100)
	require.NoError(t, err)
	require.Len(t, users, n)
	require.Greater(t, users[0].ID, users[n-1].ID)
	requireNoConnections(t, db)
}

func TestGetUserByID_NotFound(t *testing.T) {
	repo, _ := newTestRepository(t)
	_, err := repo.GetUserByID(context.Background(), 404)
	require.True(t, database.IsKind(err, database.ErrorNotFound))
}

func TestListUsers_Limit(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := repo.Insert(ctx, sampleRecord())
		require.NoError(t, err)
	}

	users, err := repo.ListUsers(ctx, 2)
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, int64(3), users[0].ID)
	require.Equal(t, int64(2), users[1].ID)
}
