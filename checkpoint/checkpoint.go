// Package checkpoint persists run state between iterations so an
// interrupted run resumes where it stopped.
//
// A checkpoint is a single JSON file written atomically (temp file plus
// rename). A checkpoint that fails to parse is deleted and the run starts
// fresh; a stale or corrupt checkpoint must never poison a new run.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/richinex/longform/outline"
	"github.com/richinex/longform/patch"
)

// Version identifies the checkpoint file format.
const Version = 1

const fileName = "checkpoint.json"

// State is everything a resumed run needs.
type State struct {
	Iteration             int              `json:"iteration"`
	CurrentSolution       string           `json:"current_solution"`
	FeedbackHistory       []string         `json:"feedback_history"`
	InitialProblem        string           `json:"initial_problem"`
	InitialSolutionTarget int              `json:"initial_solution_target_chars"`
	MaxIterations         int              `json:"max_iterations"`
	ExternalDataChecksum  string           `json:"external_data_checksum"`
	DocumentOutline       *outline.Outline `json:"document_outline_data"`
	SuccessfulPatches     []patch.Patch    `json:"successful_patches"`
	ResearchBriefsHistory []string         `json:"research_briefs_history"`
	StyleGuide            string           `json:"style_guide"`
}

type envelope struct {
	Metadata metadata `json:"metadata"`
	State    State    `json:"state"`
}

type metadata struct {
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// Store reads and writes checkpoints under a session directory.
type Store struct {
	dir    string
	logger *zap.Logger
}

func NewStore(dir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, logger: logger}
}

// Path returns the checkpoint file location.
func (s *Store) Path() string {
	return filepath.Join(s.dir, fileName)
}

// Save writes the state atomically.
func (s *Store) Save(state State) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating checkpoint dir: %w", err)
	}

	env := envelope{
		Metadata: metadata{Version: Version, Timestamp: time.Now().UTC()},
		State:    state,
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}

	tmp := s.Path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := os.Rename(tmp, s.Path()); err != nil {
		return fmt.Errorf("replacing checkpoint: %w", err)
	}

	s.logger.Debug("checkpoint saved",
		zap.Int("iteration", state.Iteration),
		zap.String("path", s.Path()))
	return nil
}

// Load reads the checkpoint. The second return is false when no usable
// checkpoint exists; a corrupt or incompatible file is removed on the way.
func (s *Store) Load() (State, bool) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		return State{}, false
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn("corrupt checkpoint removed", zap.Error(err))
		s.Delete()
		return State{}, false
	}
	if env.Metadata.Version != Version {
		s.logger.Warn("incompatible checkpoint removed",
			zap.Int("version", env.Metadata.Version))
		s.Delete()
		return State{}, false
	}
	return env.State, true
}

// Delete removes the checkpoint file if present.
func (s *Store) Delete() {
	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("removing checkpoint failed", zap.Error(err))
	}
}
