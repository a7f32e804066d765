// Package journal provides an append-only JSON-lines audit log of sync
// activity: what each run observed, upserted, warned about, and how it
// finished. One file per process start, rotated by cleanup.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EntryType defines the type of journal entry
type EntryType string

const (
	EntrySyncStarted   EntryType = "sync_started"
	EntryConnection    EntryType = "connection_tested"
	EntryBillingPulled EntryType = "billing_pulled"
	EntryUpserted      EntryType = "resource_upserted"
	EntryDeactivated   EntryType = "resource_deactivated"
	EntryUnrecognized  EntryType = "unrecognized"
	EntryWarning       EntryType = "warning"
	EntrySyncCompleted EntryType = "sync_completed"
	EntrySyncFailed    EntryType = "sync_failed"
)

// FilePrefix names journal files on disk.
const FilePrefix = "lasku"

// Entry is a single journal line.
type Entry struct {
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
	Type       EntryType       `json:"type"`
	ProviderID string          `json:"provider_id,omitempty"`
	SnapshotID string          `json:"snapshot_id,omitempty"`
	ResourceID string          `json:"resource_id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Journal appends sync audit entries to a JSON-lines file.
type Journal struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	sequence int64
	dir      string
}

// Open creates or opens a journal in the specified directory.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	filename := fmt.Sprintf("%s-%s.journal", FilePrefix, time.Now().Format("20060102-150405"))
	path := filepath.Join(dir, filename)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600) // #nosec G304 -- path built from caller-chosen dir
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}

	return &Journal{
		file:   file,
		writer: bufio.NewWriter(file),
		dir:    dir,
	}, nil
}

// Close flushes and closes the journal.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Flush(); err != nil {
		return err
	}
	return j.file.Close()
}

// Ref ties an entry to the sync run it belongs to.
type Ref struct {
	ProviderID string
	SnapshotID string
	ResourceID string
}

// Append adds an entry to the journal.
func (j *Journal) Append(entryType EntryType, ref Ref, data any) error {
	return j.append(entryType, ref, data, nil)
}

// AppendError adds an entry carrying an error.
func (j *Journal) AppendError(entryType EntryType, ref Ref, data any, errToLog error) error {
	return j.append(entryType, ref, data, errToLog)
}

func (j *Journal) append(entryType EntryType, ref Ref, data any, errToLog error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.sequence++

	var jsonData json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal data: %w", err)
		}
		jsonData = b
	}

	entry := Entry{
		Timestamp:  time.Now().UTC(),
		Sequence:   j.sequence,
		Type:       entryType,
		ProviderID: ref.ProviderID,
		SnapshotID: ref.SnapshotID,
		ResourceID: ref.ResourceID,
		Data:       jsonData,
	}
	if errToLog != nil {
		entry.Error = errToLog.Error()
	}
	return j.writeEntry(entry)
}

func (j *Journal) writeEntry(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if _, err := j.writer.Write(line); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if _, err := j.writer.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	// Flush immediately for durability
	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return j.file.Sync()
}

// Reader replays journal entries from one file.
type Reader struct {
	scanner *bufio.Scanner
	file    *os.File
}

// NewReader creates a reader for the specified journal file.
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path) // #nosec G304 -- replay path is caller input
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	return &Reader{scanner: bufio.NewScanner(file), file: file}, nil
}

// Next reads the next entry, returning io.EOF at the end.
func (r *Reader) Next() (*Entry, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	var entry Entry
	if err := json.Unmarshal(r.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}
	return &entry, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Replay invokes handler for every entry at or after since, across all
// journal files in the directory.
func Replay(dir string, since time.Time, handler func(*Entry) error) error {
	files, err := filepath.Glob(filepath.Join(dir, FilePrefix+"-*.journal"))
	if err != nil {
		return fmt.Errorf("failed to list journal files: %w", err)
	}

	for _, file := range files {
		if err := replayFile(file, since, handler); err != nil {
			return err
		}
	}
	return nil
}

func replayFile(path string, since time.Time, handler func(*Entry) error) error {
	reader, err := NewReader(path)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	for {
		entry, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if entry.Timestamp.Before(since) {
			continue
		}
		if err := handler(entry); err != nil {
			return err
		}
	}
}
