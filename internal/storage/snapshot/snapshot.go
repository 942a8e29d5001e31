// Package snapshot persists a whole session to two files: a JSON record of
// the roster, inventories, log, avatars and turn holder, and a separate
// file holding the current shared map reference.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonmaster/internal/game/session"
)

// ErrNoSnapshot is returned by Load when no snapshot has been written yet.
var ErrNoSnapshot = errors.New("no snapshot")

const formatVersion = 1

type playerRecord struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Character string `json:"character"`
}

type record struct {
	Version     int                `json:"version"`
	Players     []playerRecord     `json:"players"`
	Inventories map[int][]string   `json:"inventories"`
	GameLog     []session.LogEntry `json:"game_log"`
	Avatars     map[int]string     `json:"avatars"`
	Started     bool               `json:"started"`
	TurnCursor  int                `json:"turn_cursor"`
	TurnHolder  int                `json:"turn_holder"`
}

// Store reads and writes session snapshots.
//
// Store is not safe for concurrent use; callers serialize Save through the
// session lock.
type Store struct {
	fs       afero.Fs
	path     string
	mapPath  string
	logger   *zap.Logger
	savedMap string
}

// NewStore creates a Store writing the session record to path and the map
// reference to mapPath on fs.
//
// Precondition: fs and logger must be non-nil; path and mapPath must differ.
func NewStore(fs afero.Fs, path, mapPath string, logger *zap.Logger) *Store {
	return &Store{fs: fs, path: path, mapPath: mapPath, logger: logger}
}

// Save writes st atomically. The map file is rewritten only when the map
// reference is non-empty and differs from the last one saved or loaded.
//
// Postcondition: On error the previous snapshot is left intact.
func (s *Store) Save(st *session.State) error {
	rec := record{
		Version:     formatVersion,
		Players:     make([]playerRecord, 0, len(st.Players)),
		Inventories: make(map[int][]string, len(st.Players)),
		GameLog:     st.LogCopy(),
		Avatars:     make(map[int]string, len(st.Avatars)),
		Started:     st.Started,
		TurnCursor:  st.TurnCursor,
		TurnHolder:  st.TurnHolder,
	}
	for _, p := range st.Players {
		rec.Players = append(rec.Players, playerRecord{ID: p.ID, Name: p.Name, Character: p.Character})
		inv := make([]string, len(p.Inventory))
		copy(inv, p.Inventory)
		rec.Inventories[p.ID] = inv
	}
	for id, ref := range st.Avatars {
		rec.Avatars[id] = ref
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := s.writeAtomic(s.path, data); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	if st.CurrentMap != "" && st.CurrentMap != s.savedMap {
		if err := s.writeAtomic(s.mapPath, []byte(st.CurrentMap)); err != nil {
			return fmt.Errorf("writing map: %w", err)
		}
		s.savedMap = st.CurrentMap
	}
	s.logger.Debug("snapshot saved",
		zap.String("path", s.path),
		zap.Int("players", len(rec.Players)),
		zap.Int("log_entries", len(rec.GameLog)),
	)
	return nil
}

// Load restores the last saved session.
//
// Postcondition: Returns ErrNoSnapshot if nothing has been saved. Every
// restored player is disconnected.
func (s *Store) Load() (*session.State, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", s.path, err)
	}
	if rec.Version > formatVersion {
		return nil, fmt.Errorf("decoding snapshot %s: unsupported version %d", s.path, rec.Version)
	}

	st := session.NewState()
	for _, pr := range rec.Players {
		inv := rec.Inventories[pr.ID]
		if inv == nil {
			inv = []string{}
		}
		st.Players = append(st.Players, &session.Player{
			ID:        pr.ID,
			Name:      pr.Name,
			Character: pr.Character,
			Inventory: inv,
		})
	}
	st.Log = rec.GameLog
	for id, ref := range rec.Avatars {
		st.SetAvatar(id, ref)
	}
	st.Started = rec.Started || len(st.Players) > 0
	st.TurnCursor = rec.TurnCursor
	st.TurnHolder = rec.TurnHolder

	mapData, err := afero.ReadFile(s.fs, s.mapPath)
	switch {
	case err == nil:
		st.CurrentMap = string(mapData)
		s.savedMap = st.CurrentMap
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("reading map: %w", err)
	}

	s.logger.Info("snapshot loaded",
		zap.String("path", s.path),
		zap.Int("players", len(st.Players)),
		zap.Int("log_entries", len(st.Log)),
		zap.Bool("map", st.CurrentMap != ""),
	)
	return st, nil
}

// LoadOrNew returns the saved session, or a fresh one when none exists.
func (s *Store) LoadOrNew() (*session.State, error) {
	st, err := s.Load()
	if errors.Is(err, ErrNoSnapshot) {
		s.logger.Info("no snapshot found, starting fresh session", zap.String("path", s.path))
		return session.NewState(), nil
	}
	return st, err
}

func (s *Store) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmp, err := afero.TempFile(s.fs, dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.fs.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		s.fs.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmp.Name())
		return err
	}
	if err := s.fs.Rename(tmp.Name(), path); err != nil {
		s.fs.Remove(tmp.Name())
		return err
	}
	return nil
}
