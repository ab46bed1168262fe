//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/wishday/wishday/internal/birthday"
	"github.com/wishday/wishday/internal/model"
	"github.com/wishday/wishday/internal/testutil"
)

// ============================================================================
// Store Integration Tests
// ============================================================================

func newPostgresTestStore(t *testing.T) Store {
	t.Helper()

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "TEST_POSTGRES_URL")

	if err := RunMigrations(dbURL); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("pgxpool.New failed: %v", err)
	}
	t.Cleanup(pool.Close)

	unlock, err := testutil.AcquireDBLock(ctx, pool)
	if err != nil {
		t.Fatalf("AcquireDBLock failed: %v", err)
	}
	t.Cleanup(func() { _ = unlock() })

	if err := testutil.TruncateUsers(ctx, pool); err != nil {
		t.Fatalf("TruncateUsers failed: %v", err)
	}

	store, err := NewPostgres(ctx, dbURL)
	if err != nil {
		t.Fatalf("NewPostgres failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(ctx) })
	return store
}

func newMongoTestStore(t *testing.T) Store {
	t.Helper()

	ctx := context.Background()
	uri := testutil.RequireEnv(t, "TEST_MONGO_URL")

	store, err := NewMongo(ctx, uri, "wishday_test")
	if err != nil {
		t.Fatalf("NewMongo failed: %v", err)
	}
	if _, err := store.users.DeleteMany(ctx, bson.M{}); err != nil {
		t.Fatalf("DeleteMany failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(ctx) })
	return store
}

func TestIntegrationStore(t *testing.T) {
	backends := []struct {
		name string
		open func(*testing.T) Store
	}{
		{"postgres", newPostgresTestStore},
		{"mongo", newMongoTestStore},
	}

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			t.Run("ExactWindow", func(t *testing.T) {
				testStoreExactWindow(t, b.open(t))
			})
			t.Run("Anniversary", func(t *testing.T) {
				testStoreAnniversary(t, b.open(t))
			})
			t.Run("GetUserByEmail", func(t *testing.T) {
				testStoreGetUserByEmail(t, b.open(t))
			})
		})
	}
}

func seed(t *testing.T, store Store, users ...*model.User) {
	t.Helper()
	for _, u := range users {
		if err := store.CreateUser(context.Background(), u); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
	}
}

func testStoreExactWindow(t *testing.T, store Store) {
	ctx := context.Background()

	in := testutil.NewTestUser(t, "in", "2024-03-10")
	edge := testutil.NewTestUser(t, "edge", "2024-03-09")
	edge.DateOfBirth = time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC)
	out := testutil.NewTestUser(t, "out", "2024-03-11")
	out.DateOfBirth = time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)
	seed(t, store, in, edge, out)

	q := birthday.NewQuery(birthday.MatchExact,
		birthday.DayWindow(time.Date(2024, 3, 10, 6, 0, 0, 0, time.UTC), lagos(t)))

	got, err := store.FindBirthdays(ctx, q)
	if err != nil {
		t.Fatalf("FindBirthdays failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d users, want 2", len(got))
	}
	if got[0].ID != in.ID || got[1].ID != edge.ID {
		t.Errorf("unexpected order: %s, %s", got[0].Username, got[1].Username)
	}
}

func testStoreAnniversary(t *testing.T, store Store) {
	ctx := context.Background()

	ada := testutil.NewTestUser(t, "ada", "2020-05-01")
	bob := testutil.NewTestUser(t, "bob", "1990-05-02")
	seed(t, store, ada, bob)

	q := birthday.NewQuery(birthday.MatchAnniversary,
		birthday.DayWindow(time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC), lagos(t)))

	got, err := store.FindBirthdays(ctx, q)
	if err != nil {
		t.Fatalf("FindBirthdays failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != ada.ID {
		t.Fatalf("expected only ada, got %+v", got)
	}

	newYork, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone unavailable: %v", err)
	}
	for _, tt := range []struct {
		day  time.Time
		want int
	}{
		{time.Date(2025, 4, 30, 7, 0, 0, 0, newYork), 0},
		{time.Date(2025, 5, 1, 7, 0, 0, 0, newYork), 1},
	} {
		q := birthday.NewQuery(birthday.MatchAnniversary, birthday.DayWindow(tt.day, newYork))
		got, err := store.FindBirthdays(ctx, q)
		if err != nil {
			t.Fatalf("FindBirthdays failed: %v", err)
		}
		if len(got) != tt.want {
			t.Errorf("scan day %s: matched = %d, want %d", q.Window.Date(), len(got), tt.want)
		}
	}
}

func testStoreGetUserByEmail(t *testing.T, store Store) {
	ctx := context.Background()

	first := testutil.NewTestUser(t, "first", "2000-01-01")
	second := testutil.NewTestUser(t, "second", "2001-01-01")
	second.Email = first.Email
	seed(t, store, first, second)

	got, err := store.GetUserByEmail(ctx, first.Email)
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if got.ID != second.ID {
		t.Errorf("expected newest record %s, got %s", second.ID, got.ID)
	}
	if !got.DateOfBirth.Equal(second.DateOfBirth) {
		t.Errorf("DateOfBirth = %v, want %v", got.DateOfBirth, second.DateOfBirth)
	}

	if _, err := store.GetUserByEmail(ctx, "missing@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}
