package journal

import (
	"context"
	"strings"
	"sync"
)

// InMemory is a Journal that keeps everything in process memory. It backs
// the "memory" journal driver and tests.
type InMemory struct {
	mu       sync.Mutex
	players  map[int]Player
	rolls    []Roll
	memories []Memory
}

// NewInMemory returns an empty InMemory journal.
func NewInMemory() *InMemory {
	return &InMemory{players: make(map[int]Player)}
}

func (j *InMemory) RecordPlayer(ctx context.Context, p Player) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.players[p.ID] = p
	return nil
}

func (j *InMemory) RecordRoll(ctx context.Context, r Roll) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.At = Stamp(r.At)
	j.mu.Lock()
	defer j.mu.Unlock()
	j.rolls = append(j.rolls, r)
	return nil
}

func (j *InMemory) RecordMemory(ctx context.Context, m Memory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.At = Stamp(m.At)
	j.mu.Lock()
	defer j.mu.Unlock()
	j.memories = append(j.memories, m)
	return nil
}

func (j *InMemory) QueryMemories(ctx context.Context, keyword string, limit int) ([]Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	needle := strings.ToLower(keyword)
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []Memory
	for i := len(j.memories) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if strings.Contains(strings.ToLower(j.memories[i].Keywords), needle) {
			out = append(out, j.memories[i])
		}
	}
	return out, nil
}

func (j *InMemory) Close() error { return nil }

// Players returns the recorded players. It exists for tests.
func (j *InMemory) Players() map[int]Player {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(map[int]Player, len(j.players))
	for k, v := range j.players {
		out[k] = v
	}
	return out
}

// Rolls returns the recorded rolls in order. It exists for tests.
func (j *InMemory) Rolls() []Roll {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Roll, len(j.rolls))
	copy(out, j.rolls)
	return out
}
