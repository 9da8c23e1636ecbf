package db

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

func setupTestDB(t *testing.T) (*DB, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")
	database, err := Init(dbPath)
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return database, dbPath
}

func TestResolveDSN(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name       string
		dsn        string
		wantDriver string
		wantSource string
		wantErr    bool
	}{
		{"empty", "", "", "", true},
		{"postgres", "postgres://u:p@localhost:5432/app", driverPostgres, "postgres://u:p@localhost:5432/app", false},
		{"postgresql", "postgresql://localhost/app?sslmode=disable", driverPostgres, "postgresql://localhost/app?sslmode=disable", false},
		{"plain path", filepath.Join(dir, "a.db"), driverSQLite, filepath.Join(dir, "a.db") + "?" + sqlitePragmas, false},
		{"sqlite scheme", "sqlite://" + filepath.Join(dir, "b.db"), driverSQLite, filepath.Join(dir, "b.db") + "?" + sqlitePragmas, false},
		{"existing query", filepath.Join(dir, "c.db") + "?mode=rwc", driverSQLite, filepath.Join(dir, "c.db") + "?mode=rwc&" + sqlitePragmas, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, source, err := resolveDSN(tt.dsn)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if driver != tt.wantDriver || source != tt.wantSource {
				t.Errorf("expected (%s, %s), got (%s, %s)", tt.wantDriver, tt.wantSource, driver, source)
			}
		})
	}
}

func TestRebind(t *testing.T) {
	query := "SELECT id FROM users WHERE id = ? AND stytch_user_id = ?"

	sqliteDB := &DB{driver: driverSQLite}
	if got := sqliteDB.rebind(query); got != query {
		t.Errorf("sqlite query should be unchanged, got %s", got)
	}

	pgDB := &DB{driver: driverPostgres}
	want := "SELECT id FROM users WHERE id = $1 AND stytch_user_id = $2"
	if got := pgDB.rebind(query); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestInit_CreatesSchema(t *testing.T) {
	database, _ := setupTestDB(t)

	if database.Driver() != driverSQLite {
		t.Errorf("expected sqlite driver, got %s", database.Driver())
	}

	count, err := database.CountUsers(context.Background())
	if err != nil {
		t.Fatalf("users table missing: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty users table, got %d rows", count)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	_, dbPath := setupTestDB(t)

	if err := Migrate(dbPath, "up"); err != nil {
		t.Fatalf("second up migration should be a no-op, got %v", err)
	}
	if err := Migrate(dbPath, "sideways"); err == nil {
		t.Fatal("expected error for invalid direction")
	}
}

func TestMigrate_Down(t *testing.T) {
	database, dbPath := setupTestDB(t)

	if err := Migrate(dbPath, "down"); err != nil {
		t.Fatalf("down migration failed: %v", err)
	}
	if _, err := database.CountUsers(context.Background()); err == nil {
		t.Fatal("expected users table to be dropped")
	}
}

func TestUserCRUD(t *testing.T) {
	database, _ := setupTestDB(t)
	ctx := context.Background()

	user := NewUser("user-test-1")
	if user.ID == "" {
		t.Fatal("expected NewUser to assign an id")
	}
	if err := database.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	byStytch, err := database.GetUserByStytchUserID(ctx, "user-test-1")
	if err != nil {
		t.Fatalf("GetUserByStytchUserID failed: %v", err)
	}
	if byStytch == nil || byStytch.ID != user.ID {
		t.Fatalf("expected user %s, got %+v", user.ID, byStytch)
	}
	if !byStytch.CreatedAt.Equal(user.CreatedAt) {
		t.Errorf("expected created_at %v, got %v", user.CreatedAt, byStytch.CreatedAt)
	}

	byID, err := database.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID failed: %v", err)
	}
	if byID == nil || byID.StytchUserID != "user-test-1" {
		t.Fatalf("unexpected user %+v", byID)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	database, _ := setupTestDB(t)
	ctx := context.Background()

	user, err := database.GetUserByStytchUserID(ctx, "missing")
	if err != nil || user != nil {
		t.Errorf("expected nil, nil for missing stytch user, got %+v, %v", user, err)
	}

	user, err = database.GetUserByID(ctx, "missing")
	if err != nil || user != nil {
		t.Errorf("expected nil, nil for missing id, got %+v, %v", user, err)
	}
}

func TestCreateUser_DuplicateStytchUserID(t *testing.T) {
	database, _ := setupTestDB(t)
	ctx := context.Background()

	if err := database.CreateUser(ctx, NewUser("user-test-1")); err != nil {
		t.Fatalf("first CreateUser failed: %v", err)
	}

	err := database.CreateUser(ctx, NewUser("user-test-1"))
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	count, err := database.CountUsers(ctx)
	if err != nil {
		t.Fatalf("CountUsers failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one user, got %d", count)
	}
}

func TestCreateUser_ConcurrentDuplicates(t *testing.T) {
	database, _ := setupTestDB(t)
	ctx := context.Background()

	const workers = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		duplicates int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := database.CreateUser(ctx, NewUser("user-race"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrDuplicate):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("expected exactly one successful insert, got %d", successes)
	}
	if successes+duplicates != workers {
		t.Errorf("expected every other insert to be a duplicate, got %d duplicates", duplicates)
	}
}
