package repositories

import (
	"database/sql"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"yotoup/internal/shared"
	"yotoup/internal/yoto"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func TestTokenRepository(t *testing.T) {
	t.Run("LoadToken before any save returns nil", func(t *testing.T) {
		repo := NewTokenRepository(setupTestDB(t))

		token, err := repo.LoadToken()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token != nil {
			t.Errorf("expected nil token, got %+v", token)
		}
	})

	t.Run("SaveToken round trips", func(t *testing.T) {
		repo := NewTokenRepository(setupTestDB(t))
		expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

		err := repo.SaveToken(&oauth2.Token{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			TokenType:    "Bearer",
			Expiry:       expiry,
		})
		if err != nil {
			t.Fatalf("failed to save token: %v", err)
		}

		loaded, err := repo.LoadToken()
		if err != nil {
			t.Fatalf("failed to load token: %v", err)
		}
		if loaded.AccessToken != "access-1" || loaded.RefreshToken != "refresh-1" {
			t.Errorf("unexpected token %+v", loaded)
		}
		if !loaded.Expiry.Equal(expiry) {
			t.Errorf("expected expiry %v, got %v", expiry, loaded.Expiry)
		}
	})

	t.Run("SaveToken replaces the previous token", func(t *testing.T) {
		repo := NewTokenRepository(setupTestDB(t))

		if err := repo.SaveToken(&oauth2.Token{AccessToken: "old"}); err != nil {
			t.Fatalf("failed to save token: %v", err)
		}
		if err := repo.SaveToken(&oauth2.Token{AccessToken: "new", RefreshToken: "r2"}); err != nil {
			t.Fatalf("failed to save token: %v", err)
		}

		loaded, err := repo.LoadToken()
		if err != nil {
			t.Fatalf("failed to load token: %v", err)
		}
		if loaded.AccessToken != "new" || loaded.RefreshToken != "r2" {
			t.Errorf("expected replaced token, got %+v", loaded)
		}
	})

	t.Run("SaveToken rejects empty tokens", func(t *testing.T) {
		repo := NewTokenRepository(setupTestDB(t))
		if err := repo.SaveToken(&oauth2.Token{}); err == nil {
			t.Error("expected error for empty token")
		}
	})

	t.Run("ClearToken removes the stored token", func(t *testing.T) {
		repo := NewTokenRepository(setupTestDB(t))

		if err := repo.SaveToken(&oauth2.Token{AccessToken: "access"}); err != nil {
			t.Fatalf("failed to save token: %v", err)
		}
		if err := repo.ClearToken(); err != nil {
			t.Fatalf("failed to clear token: %v", err)
		}

		loaded, err := repo.LoadToken()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if loaded != nil {
			t.Errorf("expected nil after clear, got %+v", loaded)
		}
	})
}

func TestUploadCacheRepository(t *testing.T) {
	t.Run("Get on a miss returns nil", func(t *testing.T) {
		repo := NewUploadCacheRepository(setupTestDB(t))

		transcode, err := repo.Get("unknown")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if transcode != nil {
			t.Errorf("expected nil on miss, got %+v", transcode)
		}
	})

	t.Run("Put then Get round trips", func(t *testing.T) {
		repo := NewUploadCacheRepository(setupTestDB(t))

		err := repo.Put("sha-a", &yoto.Transcode{SHA256: "remote-a", Format: "aac", Duration: 42.5})
		if err != nil {
			t.Fatalf("failed to cache transcode: %v", err)
		}

		transcode, err := repo.Get("sha-a")
		if err != nil {
			t.Fatalf("failed to get transcode: %v", err)
		}
		if transcode.SHA256 != "remote-a" || transcode.Format != "aac" || transcode.Duration != 42.5 {
			t.Errorf("unexpected transcode %+v", transcode)
		}
	})

	t.Run("Put overwrites an existing hash", func(t *testing.T) {
		repo := NewUploadCacheRepository(setupTestDB(t))

		if err := repo.Put("sha-a", &yoto.Transcode{SHA256: "first"}); err != nil {
			t.Fatalf("failed to cache transcode: %v", err)
		}
		if err := repo.Put("sha-a", &yoto.Transcode{SHA256: "second", Format: "mp3"}); err != nil {
			t.Fatalf("failed to cache transcode: %v", err)
		}

		transcode, err := repo.Get("sha-a")
		if err != nil {
			t.Fatalf("failed to get transcode: %v", err)
		}
		if transcode.SHA256 != "second" || transcode.Format != "mp3" {
			t.Errorf("expected overwritten entry, got %+v", transcode)
		}
	})

	t.Run("Prune removes only old entries", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewUploadCacheRepository(db)

		if err := repo.Put("fresh", &yoto.Transcode{SHA256: "f"}); err != nil {
			t.Fatalf("failed to cache transcode: %v", err)
		}

		old := time.Now().Add(-48 * time.Hour)
		_, err := db.Exec(
			"INSERT INTO upload_cache (sha256, transcoded_sha256, created_at) VALUES (?, ?, ?)",
			"stale", "s", old,
		)
		if err != nil {
			t.Fatalf("failed to insert stale row: %v", err)
		}

		removed, err := repo.Prune(24 * time.Hour)
		if err != nil {
			t.Fatalf("failed to prune: %v", err)
		}
		if removed != 1 {
			t.Errorf("expected 1 pruned row, got %d", removed)
		}

		if transcode, _ := repo.Get("fresh"); transcode == nil {
			t.Error("fresh entry should survive pruning")
		}
		if transcode, _ := repo.Get("stale"); transcode != nil {
			t.Error("stale entry should be pruned")
		}
	})
}
