package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewStore(client, "ms")
}

func testSession(now time.Time) *Session {
	return &Session{
		SessionID: "s1",
		AccountID: "u1",
		TenantID:  "0",
		Principal: "alice@example.com",
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	}
}

func TestSessionSaveGetRoundTrip(t *testing.T) {
	mr, store := newTestStore(t)
	defer mr.Close()

	ctx := context.Background()
	sess := testSession(time.Now())

	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, "0", "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if *got != *sess {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, sess)
	}
}

func TestSessionGetExpiredRecordRemoved(t *testing.T) {
	mr, store := newTestStore(t)
	defer mr.Close()

	ctx := context.Background()
	sess := testSession(time.Now())
	sess.ExpiresAt = time.Now().Add(-time.Minute).Unix()

	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Get(ctx, "0", "s1"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil for logically expired session, got %v", err)
	}
	if mr.Exists("ms:0:s1") {
		t.Fatal("expected the expired record to be deleted on read")
	}
}

func TestSessionDeleteIdempotent(t *testing.T) {
	mr, store := newTestStore(t)
	defer mr.Close()

	ctx := context.Background()
	if err := store.Save(ctx, testSession(time.Now()), time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Delete(ctx, "0", "s1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "0", "s1"); err != nil {
		t.Fatalf("deleting an absent session must be a no-op success, got %v", err)
	}

	ids, err := store.ActiveSessionIDs(ctx, "0", "u1")
	if err != nil {
		t.Fatalf("ActiveSessionIDs failed: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty index after delete, got %v", ids)
	}
}

func TestSessionDeleteAllForAccount(t *testing.T) {
	mr, store := newTestStore(t)
	defer mr.Close()

	ctx := context.Background()
	now := time.Now()
	for _, id := range []string{"s1", "s2", "s3"} {
		sess := testSession(now)
		sess.SessionID = id
		if err := store.Save(ctx, sess, time.Hour); err != nil {
			t.Fatalf("Save %s failed: %v", id, err)
		}
	}

	if err := store.DeleteAllForAccount(ctx, "0", "u1"); err != nil {
		t.Fatalf("DeleteAllForAccount failed: %v", err)
	}

	for _, id := range []string{"s1", "s2", "s3"} {
		if _, err := store.Get(ctx, "0", id); !errors.Is(err, redis.Nil) {
			t.Fatalf("expected %s removed, got %v", id, err)
		}
	}
	if mr.Exists("msu:0:u1") {
		t.Fatal("expected the account index to be removed")
	}
}

func TestSessionDecodeDefensive(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Fatal("expected error on empty payload")
	}
	if _, err := Decode([]byte{99}); err == nil {
		t.Fatal("expected error on unknown version")
	}

	data, err := Encode(testSession(time.Now()))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if _, err := Decode(data[:len(data)-1]); err == nil {
		t.Fatal("expected error on truncated payload")
	}
}
