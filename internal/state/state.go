// Package state persists incremental sync progress between runs.
//
// The state document holds per-stream bookmarks plus a currently_syncing
// marker identifying a stream that was mid-flight when the process stopped.
// Every mutation is written through to disk before the caller proceeds, so
// a crash never loses more than the in-flight sheet.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State is the persisted sync document. Bookmarks are kept as raw JSON per
// stream: the file-metadata stream stores an RFC3339 timestamp, sheet
// streams store an integer table version.
type State struct {
	CurrentlySyncing string                     `json:"currently_syncing,omitempty"`
	Bookmarks        map[string]json.RawMessage `json:"bookmarks,omitempty"`
}

// New returns an empty state document.
func New() State {
	return State{Bookmarks: make(map[string]json.RawMessage)}
}

// TimeBookmark returns the stored timestamp bookmark for stream.
// The second return is false when no bookmark exists.
func (s State) TimeBookmark(stream string) (time.Time, bool) {
	raw, ok := s.Bookmarks[stream]
	if !ok {
		return time.Time{}, false
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// VersionBookmark returns the stored table version for stream.
// The second return is false when the sheet has never completed a sync.
func (s State) VersionBookmark(stream string) (int64, bool) {
	raw, ok := s.Bookmarks[stream]
	if !ok {
		return 0, false
	}
	var v int64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}

// SetTimeBookmark records a timestamp bookmark for stream.
func (s *State) SetTimeBookmark(stream string, t time.Time) {
	s.setBookmark(stream, t.UTC().Format(time.RFC3339))
}

// SetVersionBookmark records a table version bookmark for stream.
func (s *State) SetVersionBookmark(stream string, version int64) {
	s.setBookmark(stream, version)
}

func (s *State) setBookmark(stream string, v any) {
	if s.Bookmarks == nil {
		s.Bookmarks = make(map[string]json.RawMessage)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		// Only strings and integers reach here; neither can fail.
		panic(fmt.Sprintf("state: marshal bookmark: %v", err))
	}
	s.Bookmarks[stream] = raw
}

// Store loads and saves state documents.
type Store interface {
	Load() (State, error)
	// Save must make the state durable before returning.
	Save(State) error
}

// FileStore persists state as a JSON file. Saves write to a temporary file
// in the same directory and rename it over the target, so a crash mid-write
// leaves the previous document intact.
type FileStore struct {
	Path string
}

// NewFileStore returns a store backed by the JSON file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the state file. A missing file yields an empty state, not an
// error, so first runs need no setup.
func (f *FileStore) Load() (State, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("state: read %s: %w", f.Path, err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("state: parse %s: %w", f.Path, err)
	}
	if st.Bookmarks == nil {
		st.Bookmarks = make(map[string]json.RawMessage)
	}
	return st, nil
}

// Save writes the state file atomically.
func (f *FileStore) Save(st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(f.Path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("state: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("state: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("state: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("state: close temp: %w", err)
	}

	if err := os.Rename(tmpName, f.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("state: replace %s: %w", f.Path, err)
	}
	return nil
}
