// Package resume checkpoints finished device records so an interrupted
// audit can continue without contacting those devices again.
package resume

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/netaudit/shapeaudit/internal/audit"
)

// State tracks the records of an audit so it can be resumed after
// interruption.
type State struct {
	StartedAt    time.Time       `json:"started_at"`
	TotalDevices int             `json:"total_devices"`
	Records      []*audit.Record `json:"records"`

	mu   sync.Mutex
	path string
	done map[string]*audit.Record
}

// New creates a new empty resume state that will be saved to the given path.
func New(path string, totalDevices int) *State {
	return &State{
		StartedAt:    time.Now(),
		TotalDevices: totalDevices,
		path:         path,
		done:         make(map[string]*audit.Record),
	}
}

// Load reads an existing resume state from disk. Returns nil if the file
// does not exist.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading resume file: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing resume file: %w", err)
	}

	s.path = path
	s.done = make(map[string]*audit.Record, len(s.Records))
	kept := s.Records[:0]
	for _, r := range s.Records {
		if r == nil || r.Address == "" {
			continue
		}
		if _, dup := s.done[r.Address]; dup {
			continue
		}
		s.done[r.Address] = r
		kept = append(kept, r)
	}
	s.Records = kept
	return &s, nil
}

// Add checkpoints rec. Records for devices that were never audited because
// of an interrupt are not kept; those devices are retried on resume.
func (s *State) Add(rec *audit.Record) {
	if rec.Fault == audit.FaultCanceled {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.done[rec.Address]; ok {
		return
	}
	cpy := rec.Clone()
	s.done[rec.Address] = cpy
	s.Records = append(s.Records, cpy)
}

// Split partitions addresses into the checkpointed records to replay and the
// addresses still to audit. Both keep the order of addresses. Records for
// addresses no longer in the inventory are ignored.
func (s *State) Split(addresses []string) (replay []*audit.Record, remaining []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range addresses {
		if r, ok := s.done[a]; ok {
			replay = append(replay, r.Clone())
			continue
		}
		remaining = append(remaining, a)
	}
	return replay, remaining
}

// Len returns the number of checkpointed records.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Records)
}

// Save writes the current state to disk. The file is replaced atomically so
// a crash mid-write never leaves a truncated checkpoint.
func (s *State) Save() error {
	s.mu.Lock()
	data, err := json.Marshal(s)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("serializing resume state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("writing resume file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing resume file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing resume file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing resume file: %w", err)
	}
	return nil
}

// Remove deletes the resume file (called on successful completion).
func (s *State) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
