package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/sheetsync/internal/schema"
	"github.com/JonMunkholm/sheetsync/internal/state"
)

// Singer writes tap messages as line-delimited JSON. Messages are flushed
// after every write so a consumer reading the pipe sees them promptly.
type Singer struct {
	w *bufio.Writer
}

// NewSinger returns a sink writing Singer messages to w, normally stdout.
func NewSinger(w io.Writer) *Singer {
	return &Singer{w: bufio.NewWriter(w)}
}

type schemaMessage struct {
	Type          string         `json:"type"`
	Stream        string         `json:"stream"`
	Schema        *schema.Schema `json:"schema"`
	KeyProperties []string       `json:"key_properties"`
}

type recordMessage struct {
	Type          string         `json:"type"`
	Stream        string         `json:"stream"`
	Record        map[string]any `json:"record"`
	Version       *int64         `json:"version,omitempty"`
	TimeExtracted string         `json:"time_extracted"`
}

type activateVersionMessage struct {
	Type    string `json:"type"`
	Stream  string `json:"stream"`
	Version int64  `json:"version"`
}

type stateMessage struct {
	Type  string      `json:"type"`
	Value state.State `json:"value"`
}

func (s *Singer) WriteSchema(stream string, sch *schema.Schema, keyProperties []string) error {
	if keyProperties == nil {
		keyProperties = []string{}
	}
	return s.emit(schemaMessage{
		Type:          "SCHEMA",
		Stream:        stream,
		Schema:        sch,
		KeyProperties: keyProperties,
	})
}

func (s *Singer) WriteRecord(stream string, record map[string]any, extractedAt time.Time, version *int64) error {
	return s.emit(recordMessage{
		Type:          "RECORD",
		Stream:        stream,
		Record:        record,
		Version:       version,
		TimeExtracted: extractedAt.UTC().Format(time.RFC3339Nano),
	})
}

func (s *Singer) WriteActivateVersion(stream string, version int64) error {
	return s.emit(activateVersionMessage{
		Type:    "ACTIVATE_VERSION",
		Stream:  stream,
		Version: version,
	})
}

func (s *Singer) WriteState(st state.State) error {
	return s.emit(stateMessage{Type: "STATE", Value: st})
}

func (s *Singer) emit(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("sink: marshal message: %w", err)
	}
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("sink: write message: %w", err)
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("sink: write message: %w", err)
	}
	return s.w.Flush()
}
