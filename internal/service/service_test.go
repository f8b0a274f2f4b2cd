package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sakif/social-feed/internal/apperror"
	"github.com/sakif/social-feed/internal/auth"
	"github.com/sakif/social-feed/internal/model"
	"github.com/sakif/social-feed/internal/repository/sqlite"
)

// =========================================================================
// SHARED HELPERS
// =========================================================================
//
// Service tests run against the real SQLite repository on an in-memory
// database. The set semantics the services rely on (idempotent add/remove,
// one shadow per user and original) live in the repository, so faking it
// would test the fake.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// newFileTestStore opens a database file so the pool uses several
// connections, as the server does.
func newFileTestStore(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(filepath.Join(t.TempDir(), "feed.db"))
	if err != nil {
		t.Fatalf("sqlite.New(file) error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, db *sqlite.DB, username string) *model.User {
	t.Helper()
	u := &model.User{Username: username, Email: username + "@example.com"}
	if err := db.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser(%s) error = %v", username, err)
	}
	return u
}

func newTestAuthService(t *testing.T, db *sqlite.DB) *AuthService {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!", 0)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	// Cost 4 is the bcrypt minimum, fast enough for tests.
	ps := auth.NewPasswordServiceForTest(4)

	return NewAuthService(db, ts, ps, testLogger())
}

// wantAppError fails unless err wraps sentinel and carries message.
// An empty message only checks the sentinel.
func wantAppError(t *testing.T, err, sentinel error, message string) {
	t.Helper()
	if !errors.Is(err, sentinel) {
		t.Fatalf("error = %v, want %v", err, sentinel)
	}
	if message == "" {
		return
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error %v is not an *apperror.AppError", err)
	}
	if appErr.Message != message {
		t.Errorf("message = %q, want %q", appErr.Message, message)
	}
}

// recordingMedia is a media.Store that keeps everything in memory.
type recordingMedia struct {
	mu        sync.Mutex
	saved     map[string][]byte
	deleted   []string
	deleteErr error
}

func newRecordingMedia() *recordingMedia {
	return &recordingMedia{saved: map[string][]byte{}}
}

func (m *recordingMedia) Save(_ context.Context, prefix, filename string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	url := "/uploads/" + prefix + "/" + filename
	m.saved[url] = data
	return url, nil
}

func (m *recordingMedia) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, url)
	return m.deleteErr
}

func (m *recordingMedia) deletedURLs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}
