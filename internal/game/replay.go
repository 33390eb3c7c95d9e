package game

import (
	"compress/gzip"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrReplayNotFound is returned when no replay exists for a game.
var ErrReplayNotFound = errors.New("replay not found")

const replayVersion = 2

// Snapshot is one committed state in a replay. The log is not stored
// whole: Entries holds what was appended since the previous snapshot and
// Base how many earlier entries precede them.
type Snapshot struct {
	Seq        int
	Action     ActionKind
	State      State
	Base       int
	Entries    []LogEntry
	Checksum   string
	RecordedAt time.Time
}

// Frame is a snapshot with its full state rebuilt, ready for a viewer.
type Frame struct {
	Step       int        `json:"step"`
	Steps      int        `json:"steps"`
	Action     ActionKind `json:"action,omitempty"`
	Checksum   string     `json:"checksum"`
	RecordedAt time.Time  `json:"recordedAt"`
	State      State      `json:"state"`
}

// Replay is the ordered list of snapshots of one game.
type Replay struct {
	GameID string
	States []*Snapshot

	mu     sync.RWMutex
	logLen int
}

// NewReplay creates an empty replay.
func NewReplay(gameID string) *Replay {
	return &Replay{
		GameID: gameID,
		States: make([]*Snapshot, 0),
	}
}

// RecordState appends a snapshot of s taken after action.
func (r *Replay) RecordState(action ActionKind, s State) *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	base := r.logLen
	if base > len(s.Log) {
		base = 0
	}
	entries := append([]LogEntry(nil), s.Log[base:]...)

	detached := s
	detached.Log = nil
	snapshot := &Snapshot{
		Seq:        len(r.States),
		Action:     action,
		State:      detached.Clone(),
		Base:       base,
		Entries:    entries,
		Checksum:   s.Checksum(),
		RecordedAt: time.Now(),
	}
	r.States = append(r.States, snapshot)
	r.logLen = len(s.Log)
	return snapshot
}

// Size returns the number of recorded states.
func (r *Replay) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.States)
}

// GetStateAt returns the snapshot at index, or nil when out of range.
func (r *Replay) GetStateAt(index int) *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if index >= 0 && index < len(r.States) {
		return r.States[index]
	}
	return nil
}

// Frame rebuilds the state recorded at index, log included.
func (r *Replay) Frame(index int) (Frame, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if index < 0 || index >= len(r.States) {
		return Frame{}, false
	}

	var log []LogEntry
	for _, snap := range r.States[:index+1] {
		if snap.Base < len(log) {
			log = log[:snap.Base]
		}
		log = append(log, snap.Entries...)
	}

	snap := r.States[index]
	state := snap.State.Clone()
	state.Log = append(make([]LogEntry, 0, len(log)), log...)
	return Frame{
		Step:       index,
		Steps:      len(r.States),
		Action:     snap.Action,
		Checksum:   snap.Checksum,
		RecordedAt: snap.RecordedAt,
		State:      state,
	}, true
}

// SaveToFile writes the replay as a gzipped gob stream named after the game.
func (r *Replay) SaveToFile(directory string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := os.MkdirAll(directory, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(replayPath(directory, r.GameID))
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	defer gzipWriter.Close()

	encoder := gob.NewEncoder(gzipWriter)
	header := replayHeader{
		GameID:     r.GameID,
		Timestamp:  time.Now(),
		Version:    replayVersion,
		StateCount: len(r.States),
	}
	if err := encoder.Encode(&header); err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}
	for i, snap := range r.States {
		if err := encoder.Encode(snap); err != nil {
			return fmt.Errorf("failed to encode state %d: %w", i, err)
		}
	}
	return nil
}

// LoadReplayFromFile reads a replay written by SaveToFile. A missing file
// wraps ErrReplayNotFound.
func LoadReplayFromFile(directory, gameID string) (*Replay, error) {
	file, err := os.Open(replayPath(directory, gameID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrReplayNotFound, gameID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	decoder := gob.NewDecoder(gzipReader)

	var header replayHeader
	if err := decoder.Decode(&header); err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}
	if header.Version != replayVersion {
		return nil, fmt.Errorf("unsupported replay version: %d", header.Version)
	}

	replay := NewReplay(header.GameID)
	for i := 0; i < header.StateCount; i++ {
		var snap Snapshot
		if err := decoder.Decode(&snap); err != nil {
			return nil, fmt.Errorf("failed to decode state %d: %w", i, err)
		}
		replay.States = append(replay.States, &snap)
		replay.logLen = snap.Base + len(snap.Entries)
	}
	return replay, nil
}

func replayPath(directory, gameID string) string {
	return filepath.Join(directory, gameID+".replay")
}

type replayHeader struct {
	GameID     string
	Timestamp  time.Time
	Version    int
	StateCount int
}

// ReplayRecorder keeps the replay of every running game and writes it to
// saveDir once the game is won.
type ReplayRecorder struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	replays map[string]*Replay
	saveDir string
}

// NewReplayRecorder creates a recorder. An empty saveDir keeps replays in
// memory only.
func NewReplayRecorder(logger *zap.Logger, saveDir string) *ReplayRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplayRecorder{
		logger:  logger,
		replays: make(map[string]*Replay),
		saveDir: saveDir,
	}
}

// StartRecording begins a fresh replay for gameID, dropping any previous one.
func (rr *ReplayRecorder) StartRecording(gameID string) {
	rr.mu.Lock()
	rr.replays[gameID] = NewReplay(gameID)
	rr.mu.Unlock()

	rr.logger.Debug("started replay recording", zap.String("game_id", gameID))
}

// RecordState appends s to the game's replay. Games not being recorded
// are ignored.
func (rr *ReplayRecorder) RecordState(gameID string, action ActionKind, s State) {
	rr.mu.RLock()
	replay := rr.replays[gameID]
	rr.mu.RUnlock()

	if replay == nil {
		return
	}
	snap := replay.RecordState(action, s)

	rr.logger.Debug("recorded replay state",
		zap.String("game_id", gameID),
		zap.Int("step", snap.Seq),
	)
}

// GetReplay returns the in-memory replay of a running game.
func (rr *ReplayRecorder) GetReplay(gameID string) (*Replay, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	replay, exists := rr.replays[gameID]
	return replay, exists
}

// SaveReplay writes a replay to disk and drops it from memory. Without a
// save directory it is a no-op.
func (rr *ReplayRecorder) SaveReplay(gameID string) error {
	if rr.saveDir == "" {
		return nil
	}

	rr.mu.Lock()
	replay, exists := rr.replays[gameID]
	if !exists {
		rr.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrReplayNotFound, gameID)
	}
	delete(rr.replays, gameID)
	rr.mu.Unlock()

	if err := replay.SaveToFile(rr.saveDir); err != nil {
		return fmt.Errorf("failed to save replay: %w", err)
	}

	rr.logger.Info("saved replay to disk",
		zap.String("game_id", gameID),
		zap.Int("state_count", replay.Size()),
		zap.String("directory", rr.saveDir),
	)
	return nil
}

// LoadReplay returns the replay of gameID, from memory while the game is
// running and from disk once it has been saved.
func (rr *ReplayRecorder) LoadReplay(gameID string) (*Replay, error) {
	if replay, ok := rr.GetReplay(gameID); ok {
		return replay, nil
	}
	if rr.saveDir == "" {
		return nil, fmt.Errorf("%w: %s", ErrReplayNotFound, gameID)
	}

	replay, err := LoadReplayFromFile(rr.saveDir, gameID)
	if err != nil {
		return nil, err
	}

	rr.logger.Info("loaded replay from disk",
		zap.String("game_id", gameID),
		zap.Int("state_count", replay.Size()),
	)
	return replay, nil
}

// ClearReplay drops a replay from memory without saving it.
func (rr *ReplayRecorder) ClearReplay(gameID string) {
	rr.mu.Lock()
	delete(rr.replays, gameID)
	rr.mu.Unlock()

	rr.logger.Debug("cleared replay from memory", zap.String("game_id", gameID))
}
