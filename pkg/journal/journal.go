// Package journal keeps an append-only, hash-chained record of tournament events in
// JSON Lines format and exports result summaries. Every entry carries the hash of its
// predecessor so edits, reordering and truncation inside the file are detected.
package journal

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pashagolub/dilemma/pkg/tournament"
)

// Error types for journal operations
var (
	ErrJournalCorrupted  = errors.New("journal corrupted or tampered")
	ErrInvalidEntry      = errors.New("invalid journal entry")
	ErrJournalNotFound   = errors.New("journal file not found")
	ErrJournalClosed     = errors.New("journal is closed")
	ErrInvalidJournalDir = errors.New("invalid journal directory")
)

// FileName is the journal file kept in a results directory
const FileName = "journal.jsonl"

// EventType names the kind of tournament event an entry records
type EventType string

const (
	EventBatchStarted   EventType = tournament.EventBatchStarted
	EventBatchCompleted EventType = tournament.EventBatchCompleted
	EventSizeSkipped    EventType = tournament.EventSizeSkipped
	EventSizeLoadFailed EventType = tournament.EventSizeLoadFailed
	EventSizeStarted    EventType = tournament.EventSizeStarted
	EventSizeCompleted  EventType = tournament.EventSizeCompleted
	EventMatchCompleted EventType = tournament.EventMatchCompleted
	EventMatchFailed    EventType = tournament.EventMatchFailed
)

// Entry is a single line of the journal
type Entry struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	EventType EventType       `json:"event_type"`
	RunID     string          `json:"run_id"`
	GroupSize int             `json:"group_size,omitempty"`
	MatchID   string          `json:"match_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`

	// Integrity protection
	PreviousHash string `json:"previous_hash"`
	EntryHash    string `json:"entry_hash"`
	Sequence     uint64 `json:"sequence"`
}

// Payload decodes the event data
func (e Entry) Payload() (map[string]any, error) {
	if len(e.Data) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(e.Data, &m); err != nil {
		return nil, fmt.Errorf("%w: sequence %d: %v", ErrInvalidEntry, e.Sequence, err)
	}
	return m, nil
}

// Journal appends events of one process run to a journal file. Several runs may share
// one file; each entry carries the run id of the process that wrote it.
type Journal struct {
	runID    string
	path     string
	file     *os.File
	mu       sync.Mutex
	lastHash string
	sequence uint64
}

// Open opens or creates the journal in dir. An existing journal is verified before
// new entries are appended to it.
func Open(dir string) (*Journal, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, ErrInvalidJournalDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	j := &Journal{
		runID: uuid.NewString(),
		path:  filepath.Join(dir, FileName),
	}

	if _, err := os.Stat(j.path); err == nil {
		last, count, err := verifyFile(j.path)
		if err != nil {
			return nil, err
		}
		j.lastHash = last
		j.sequence = count
	}

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	j.file = file
	return j, nil
}

// Record appends a tournament event. It satisfies tournament.Recorder.
func (j *Journal) Record(event string, groupSize int, matchID string, data map[string]any) error {
	var raw json.RawMessage
	if len(data) > 0 {
		b, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("%w: cannot encode %s data: %v", ErrInvalidEntry, event, err)
		}
		raw = b
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return ErrJournalClosed
	}

	entry := Entry{
		ID:           uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		EventType:    EventType(event),
		RunID:        j.runID,
		GroupSize:    groupSize,
		MatchID:      matchID,
		Data:         raw,
		PreviousHash: j.lastHash,
		Sequence:     j.sequence,
	}
	entry.EntryHash = calculateEntryHash(&entry)

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	if _, err := j.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write journal entry: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync journal: %w", err)
	}

	j.lastHash = entry.EntryHash
	j.sequence++
	return nil
}

// calculateEntryHash computes the SHA-256 hash of an entry's content
func calculateEntryHash(entry *Entry) string {
	data := sha256.Sum256(entry.Data)
	content := strings.Join([]string{
		entry.ID,
		entry.Timestamp.Format(time.RFC3339Nano),
		string(entry.EventType),
		entry.RunID,
		strconv.Itoa(entry.GroupSize),
		entry.MatchID,
		entry.PreviousHash,
		strconv.FormatUint(entry.Sequence, 10),
		hex.EncodeToString(data[:]),
	}, "|")
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// Close closes the journal file
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// Path returns the journal file path
func (j *Journal) Path() string { return j.path }

// RunID identifies the entries written through this journal
func (j *Journal) RunID() string { return j.runID }

// Sequence returns the sequence number of the next entry
func (j *Journal) Sequence() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.sequence
}

// VerifyIntegrity checks the whole hash chain of the journal
func (j *Journal) VerifyIntegrity() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, _, err := verifyFile(j.path)
	return err
}

// Verify checks the hash chain of the journal file at path and returns the number of
// valid entries
func Verify(path string) (uint64, error) {
	_, count, err := verifyFile(path)
	return count, err
}

// verifyFile walks the chain and returns the last hash and entry count
func verifyFile(path string) (string, uint64, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", 0, fmt.Errorf("%w: %s", ErrJournalNotFound, path)
		}
		return "", 0, fmt.Errorf("failed to open journal for verification: %w", err)
	}
	defer func() { _ = file.Close() }()

	var previousHash string
	sequence := uint64(0)
	err = scanEntries(file, func(entry *Entry, parseErr error) error {
		if parseErr != nil {
			return fmt.Errorf("%w: invalid JSON at sequence %d: %v", ErrJournalCorrupted, sequence, parseErr)
		}
		if entry.Sequence != sequence {
			return fmt.Errorf("%w: sequence mismatch at entry %d, got %d", ErrJournalCorrupted, sequence, entry.Sequence)
		}
		if entry.PreviousHash != previousHash {
			return fmt.Errorf("%w: hash chain broken at sequence %d", ErrJournalCorrupted, sequence)
		}
		if entry.EntryHash != calculateEntryHash(entry) {
			return fmt.Errorf("%w: entry hash mismatch at sequence %d", ErrJournalCorrupted, sequence)
		}
		previousHash = entry.EntryHash
		sequence++
		return nil
	})
	if err != nil {
		return "", 0, err
	}
	return previousHash, sequence, nil
}

// scanEntries calls fn for every non-empty line of the journal
func scanEntries(file *os.File, fn func(entry *Entry, parseErr error) error) error {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			if cbErr := fn(nil, err); cbErr != nil {
				return cbErr
			}
			continue
		}
		if err := fn(&entry, nil); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading journal: %w", err)
	}
	return nil
}

// QueryOptions defines filtering criteria for journal queries
type QueryOptions struct {
	EventTypes []EventType `json:"event_types,omitempty"`
	RunID      string      `json:"run_id,omitempty"`
	GroupSize  int         `json:"group_size,omitempty"` // 0 matches every size
	MatchID    string      `json:"match_id,omitempty"`
	StartTime  *time.Time  `json:"start_time,omitempty"`
	EndTime    *time.Time  `json:"end_time,omitempty"`
	Limit      int         `json:"limit,omitempty"`
	Offset     int         `json:"offset,omitempty"`
}

// QueryResult contains the results of a journal query
type QueryResult struct {
	Entries      []Entry      `json:"entries"`
	TotalCount   int          `json:"total_count"`
	HasMore      bool         `json:"has_more"`
	QueryOptions QueryOptions `json:"query_options"`
}

// Query searches the journal for entries matching the criteria
func (j *Journal) Query(options QueryOptions) (*QueryResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Query(j.path, options)
}

// Query searches the journal file at path. Malformed lines are skipped.
func Query(path string, options QueryOptions) (*QueryResult, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &QueryResult{Entries: []Entry{}, QueryOptions: options}, nil
		}
		return nil, fmt.Errorf("failed to open journal for reading: %w", err)
	}
	defer func() { _ = file.Close() }()

	matches := []Entry{}
	err = scanEntries(file, func(entry *Entry, parseErr error) error {
		if parseErr == nil && matchesQuery(entry, options) {
			matches = append(matches, *entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	total := len(matches)
	start := min(max(options.Offset, 0), total)
	end := total
	if options.Limit > 0 && start+options.Limit < total {
		end = start + options.Limit
	}

	return &QueryResult{
		Entries:      matches[start:end],
		TotalCount:   total,
		HasMore:      end < total,
		QueryOptions: options,
	}, nil
}

// matchesQuery determines if an entry matches the query criteria
func matchesQuery(entry *Entry, options QueryOptions) bool {
	if len(options.EventTypes) > 0 {
		found := false
		for _, t := range options.EventTypes {
			if entry.EventType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if options.RunID != "" && entry.RunID != options.RunID {
		return false
	}
	if options.GroupSize != 0 && entry.GroupSize != options.GroupSize {
		return false
	}
	if options.MatchID != "" && entry.MatchID != options.MatchID {
		return false
	}
	if options.StartTime != nil && entry.Timestamp.Before(*options.StartTime) {
		return false
	}
	if options.EndTime != nil && entry.Timestamp.After(*options.EndTime) {
		return false
	}
	return true
}

// MatchHistory returns every entry recorded for one match id
func (j *Journal) MatchHistory(matchID string) ([]Entry, error) {
	result, err := j.Query(QueryOptions{MatchID: matchID})
	if err != nil {
		return nil, err
	}
	return result.Entries, nil
}

// Statistics summarizes a journal
type Statistics struct {
	TotalEntries int               `json:"total_entries"`
	Runs         []string          `json:"runs"`
	EventCounts  map[EventType]int `json:"event_counts"`
	GroupSizes   map[int]int       `json:"group_sizes"` // match_completed entries per size
	FirstEntry   *time.Time        `json:"first_entry,omitempty"`
	LastEntry    *time.Time        `json:"last_entry,omitempty"`
}

// GetStatistics returns statistics about the journal
func (j *Journal) GetStatistics() (*Statistics, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return GetStatistics(j.path)
}

// GetStatistics returns statistics about the journal file at path
func GetStatistics(path string) (*Statistics, error) {
	result, err := Query(path, QueryOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to generate statistics: %w", err)
	}

	stats := &Statistics{
		TotalEntries: result.TotalCount,
		EventCounts:  make(map[EventType]int),
		GroupSizes:   make(map[int]int),
	}
	seen := make(map[string]bool)
	for i := range result.Entries {
		entry := &result.Entries[i]
		stats.EventCounts[entry.EventType]++
		if entry.EventType == EventMatchCompleted {
			stats.GroupSizes[entry.GroupSize]++
		}
		if !seen[entry.RunID] {
			seen[entry.RunID] = true
			stats.Runs = append(stats.Runs, entry.RunID)
		}
	}
	if n := len(result.Entries); n > 0 {
		first := result.Entries[0].Timestamp
		last := result.Entries[n-1].Timestamp
		stats.FirstEntry = &first
		stats.LastEntry = &last
	}
	return stats, nil
}
