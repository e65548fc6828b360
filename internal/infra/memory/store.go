package memory

import (
	"context"
	"sort"
	"sync"

	"quizroom-service/internal/domain"
)

// Store is an in-memory implementation of app.Store. A single RWMutex guards
// all maps so every method observes and leaves a consistent state.
type Store struct {
	mu        sync.RWMutex
	rooms     map[string]domain.Room
	questions map[string]domain.Question
	players   map[string]domain.Player
	// answers is keyed by player ID, then question ID.
	answers map[string]map[string]domain.Answer
}

func NewStore() *Store {
	return &Store{
		rooms:     make(map[string]domain.Room),
		questions: make(map[string]domain.Question),
		players:   make(map[string]domain.Player),
		answers:   make(map[string]map[string]domain.Answer),
	}
}

func (s *Store) CreateRoom(_ context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Code]; ok {
		return domain.ErrRoomCodeTaken
	}
	s.rooms[room.Code] = room
	return nil
}

func (s *Store) GetRoom(_ context.Context, code string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return room, nil
}

func (s *Store) UpdateRoom(_ context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.rooms[room.Code]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if !current.Status.CanTransition(room.Status) {
		return domain.ErrInvalidState
	}
	s.rooms[room.Code] = room
	return nil
}

func (s *Store) DeleteRoom(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[code]; !ok {
		return domain.ErrRoomNotFound
	}
	// Questions go first so their answers are dropped with them.
	for id, q := range s.questions {
		if q.RoomCode != code {
			continue
		}
		for _, byQuestion := range s.answers {
			delete(byQuestion, id)
		}
		delete(s.questions, id)
	}
	for id, p := range s.players {
		if p.RoomCode == code {
			s.deletePlayerLocked(id)
		}
	}
	delete(s.rooms, code)
	return nil
}

func (s *Store) CreateQuestions(_ context.Context, questions []domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range questions {
		if _, ok := s.rooms[q.RoomCode]; !ok {
			return domain.ErrRoomNotFound
		}
	}
	for _, q := range questions {
		s.questions[q.ID] = q
	}
	return nil
}

func (s *Store) GetQuestion(_ context.Context, id string) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return q, nil
}

func (s *Store) ListQuestions(_ context.Context, roomCode string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Question, 0)
	for _, q := range s.questions {
		if q.RoomCode == roomCode {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *Store) CreatePlayer(_ context.Context, player domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[player.RoomCode]; !ok {
		return domain.ErrRoomNotFound
	}
	if _, ok := s.players[player.ID]; ok {
		return domain.ErrPlayerExists
	}
	s.players[player.ID] = player
	return nil
}

func (s *Store) GetPlayer(_ context.Context, id string) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return p, nil
}

func (s *Store) ListPlayers(_ context.Context, roomCode string) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Player, 0)
	for _, p := range s.players {
		if p.RoomCode == roomCode {
			out = append(out, p)
		}
	}
	SortPlayers(out)
	return out, nil
}

// SortPlayers orders players by descending score, then earliest join, then ID.
func SortPlayers(players []domain.Player) {
	sort.Slice(players, func(i, j int) bool {
		if players[i].Score != players[j].Score {
			return players[i].Score > players[j].Score
		}
		if !players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].JoinedAt.Before(players[j].JoinedAt)
		}
		return players[i].ID < players[j].ID
	})
}

func (s *Store) DeletePlayer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[id]; !ok {
		return domain.ErrPlayerNotFound
	}
	s.deletePlayerLocked(id)
	return nil
}

func (s *Store) deletePlayerLocked(id string) {
	delete(s.players, id)
	delete(s.answers, id)
}

func (s *Store) RecordAnswer(_ context.Context, answer domain.Answer, points int) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, ok := s.players[answer.PlayerID]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if _, ok := s.questions[answer.QuestionID]; !ok {
		return domain.Player{}, domain.ErrQuestionNotFound
	}
	byQuestion := s.answers[answer.PlayerID]
	if byQuestion == nil {
		byQuestion = make(map[string]domain.Answer)
		s.answers[answer.PlayerID] = byQuestion
	}
	if _, ok := byQuestion[answer.QuestionID]; ok {
		return domain.Player{}, domain.ErrAlreadyAnswered
	}
	byQuestion[answer.QuestionID] = answer
	if points > 0 {
		player.Score += points
	}
	s.players[player.ID] = player
	return player, nil
}

func (s *Store) HasAnswered(_ context.Context, playerID, questionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.answers[playerID][questionID]
	return ok, nil
}

func (s *Store) ListAnswers(_ context.Context, playerID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Answer, 0, len(s.answers[playerID]))
	for _, a := range s.answers[playerID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (s *Store) ClearAnswers(_ context.Context, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.answers, playerID)
	return nil
}
