package schedule

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/collabtask/authcore/internal/domain"
	"github.com/collabtask/authcore/internal/repository"
	"github.com/collabtask/authcore/internal/service"
)

func newCleanupFixture(t *testing.T) (*service.TokenService, repository.TokenRepository) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Token{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := repository.NewTokenRepository(db)
	tokens := service.NewTokenService(repo, service.NewNoopRevocationMarkerStore(),
		2*time.Hour, 7*24*time.Hour, 5*time.Minute, 7*24*time.Hour)
	return tokens, repo
}

func seedDeadToken(t *testing.T, repo repository.TokenRepository, access string) {
	t.Helper()
	if err := repo.Create(&domain.Token{
		UserID:           1,
		AccessToken:      access,
		RefreshToken:     "ref-" + access,
		AccessExpiresAt:  time.Now().Add(-20 * 24 * time.Hour),
		RefreshExpiresAt: time.Now().Add(-10 * 24 * time.Hour),
	}); err != nil {
		t.Fatalf("seed token: %v", err)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCleanupJobRunOnceWithoutLocks(t *testing.T) {
	tokens, repo := newCleanupFixture(t)
	seedDeadToken(t, repo, "acc-dead")

	job := NewCleanupJob(tokens, nil, time.Hour, time.Minute, discardLogger())
	job.RunOnce(context.Background())

	if _, err := repo.FindByAccessToken("acc-dead"); err == nil {
		t.Fatal("expired row must be deleted")
	}
}

func TestCleanupJobSkipsWhenLockHeld(t *testing.T) {
	tokens, repo := newCleanupFixture(t)
	seedDeadToken(t, repo, "acc-dead")

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})
	locks := service.NewRedisLockManager(client, "")
	ctx := context.Background()

	held, err := locks.TryAcquire(ctx, "schedule:token_cleanup", 0, time.Minute)
	if err != nil {
		t.Fatalf("pre-acquire: %v", err)
	}

	job := NewCleanupJob(tokens, locks, time.Hour, time.Minute, discardLogger())
	job.RunOnce(ctx)

	// Another replica holds the lock, so this one must not sweep.
	if _, err := repo.FindByAccessToken("acc-dead"); err != nil {
		t.Fatalf("row must survive a skipped sweep: %v", err)
	}

	if err := held.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	job.RunOnce(ctx)
	if _, err := repo.FindByAccessToken("acc-dead"); err == nil {
		t.Fatal("row must be swept once the lock frees up")
	}

	// The sweep's own lock must be released afterwards.
	guard, err := locks.TryAcquire(ctx, "schedule:token_cleanup", 0, time.Minute)
	if err != nil {
		t.Fatalf("lock must be free after a sweep: %v", err)
	}
	_ = guard.Release(ctx)
}

func TestCleanupJobRunStopsOnCancel(t *testing.T) {
	tokens, _ := newCleanupFixture(t)
	job := NewCleanupJob(tokens, nil, 10*time.Millisecond, time.Minute, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run must return promptly after cancellation")
	}
}
