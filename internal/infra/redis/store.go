package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

// Store is a Redis-aware decorator around an app.Store.
// Notes:
//   - The wrapped store stays authoritative; all reads go to it.
//   - Redis holds a snapshot of every live room and its member ids so other
//     processes (dashboards, a future second instance) can observe rooms.
//   - Mirror writes are best-effort; a failure is logged, never surfaced.
type Store struct {
	app.Store
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewStore(inner app.Store, client *redis.Client, ttl time.Duration, log *zap.Logger) *Store {
	return &Store{Store: inner, client: client, ttl: ttl, log: log}
}

func RoomKey(code string) string {
	return "quizroom:room:" + code
}

func MembersKey(code string) string {
	return "quizroom:room:" + code + ":players"
}

func (s *Store) CreateRoom(ctx context.Context, room domain.Room) error {
	if err := s.Store.CreateRoom(ctx, room); err != nil {
		return err
	}
	s.mirrorRoom(ctx, room)
	return nil
}

func (s *Store) UpdateRoom(ctx context.Context, room domain.Room) error {
	if err := s.Store.UpdateRoom(ctx, room); err != nil {
		return err
	}
	s.mirrorRoom(ctx, room)
	return nil
}

func (s *Store) DeleteRoom(ctx context.Context, code string) error {
	if err := s.Store.DeleteRoom(ctx, code); err != nil {
		return err
	}
	if err := s.client.Del(ctx, RoomKey(code), MembersKey(code)).Err(); err != nil {
		s.log.Warn("redis room delete failed", zap.String("room", code), zap.Error(err))
	}
	return nil
}

func (s *Store) CreatePlayer(ctx context.Context, player domain.Player) error {
	if err := s.Store.CreatePlayer(ctx, player); err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, MembersKey(player.RoomCode), player.ID)
	if s.ttl > 0 {
		pipe.Expire(ctx, MembersKey(player.RoomCode), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn("redis member add failed", zap.String("room", player.RoomCode), zap.Error(err))
	}
	return nil
}

func (s *Store) DeletePlayer(ctx context.Context, id string) error {
	player, err := s.Store.GetPlayer(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Store.DeletePlayer(ctx, id); err != nil {
		return err
	}
	if err := s.client.SRem(ctx, MembersKey(player.RoomCode), id).Err(); err != nil {
		s.log.Warn("redis member remove failed", zap.String("room", player.RoomCode), zap.Error(err))
	}
	return nil
}

func (s *Store) mirrorRoom(ctx context.Context, room domain.Room) {
	data, err := json.Marshal(room)
	if err != nil {
		s.log.Warn("encode room snapshot", zap.String("room", room.Code), zap.Error(err))
		return
	}
	if err := s.client.Set(ctx, RoomKey(room.Code), data, s.ttl).Err(); err != nil {
		s.log.Warn("redis room mirror failed", zap.String("room", room.Code), zap.Error(err))
	}
}
