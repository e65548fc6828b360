package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quizroom-service/internal/domain"
	"quizroom-service/internal/infra/memory"
)

func TestStoreMirrorsRoomLifecycle(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewStore(memory.NewStore(), newClient(mr), time.Minute, zap.NewNop())

	room := domain.Room{Code: "ABC123", HostID: "h1", Topic: "Space", QuestionCount: 5, TimePerQuestion: 15, Status: domain.StatusWaiting}
	if err := store.CreateRoom(ctx, room); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if !mr.Exists(RoomKey("ABC123")) {
		t.Fatalf("expected room snapshot in redis")
	}
	if ttl := mr.TTL(RoomKey("ABC123")); ttl != time.Minute {
		t.Fatalf("expected ttl of 1m, got %v", ttl)
	}

	room.Status = domain.StatusActive
	if err := store.UpdateRoom(ctx, room); err != nil {
		t.Fatalf("update room: %v", err)
	}
	raw, err := mr.Get(RoomKey("ABC123"))
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	var snapshot domain.Room
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.Status != domain.StatusActive {
		t.Fatalf("expected mirrored status active, got %s", snapshot.Status)
	}

	if err := store.CreatePlayer(ctx, domain.Player{ID: "p1", RoomCode: "ABC123", Name: "Alice"}); err != nil {
		t.Fatalf("create player: %v", err)
	}
	if ok, _ := mr.SIsMember(MembersKey("ABC123"), "p1"); !ok {
		t.Fatalf("expected p1 in member set")
	}
	if err := store.DeletePlayer(ctx, "p1"); err != nil {
		t.Fatalf("delete player: %v", err)
	}
	if ok, _ := mr.SIsMember(MembersKey("ABC123"), "p1"); ok {
		t.Fatalf("expected p1 removed from member set")
	}

	if err := store.DeleteRoom(ctx, "ABC123"); err != nil {
		t.Fatalf("delete room: %v", err)
	}
	if mr.Exists(RoomKey("ABC123")) {
		t.Fatalf("expected room snapshot removed")
	}
	if _, err := store.GetRoom(ctx, "ABC123"); err != domain.ErrRoomNotFound {
		t.Fatalf("expected room not found from inner store, got %v", err)
	}
}

func TestStoreSurvivesRedisOutage(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := newClient(mr)
	mr.Close()

	ctx := context.Background()
	store := NewStore(memory.NewStore(), client, time.Minute, zap.NewNop())
	if err := store.CreateRoom(ctx, domain.Room{Code: "ABC123", HostID: "h1", Status: domain.StatusWaiting}); err != nil {
		t.Fatalf("create room should not surface mirror errors: %v", err)
	}
	if _, err := store.GetRoom(ctx, "ABC123"); err != nil {
		t.Fatalf("get room: %v", err)
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
