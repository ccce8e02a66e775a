// Package data provides the ambient plumbing shared by the tournament packages and the CLI:
// file persistence with atomic writes and corruption detection, the YAML run configuration
// with environment overrides, and the command line option group.
package data

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Error types for storage operations
var (
	ErrStorageOperation  = errors.New("storage operation failed")
	ErrCSVFormat         = errors.New("CSV format error")
	ErrJSONSerialization = errors.New("JSON serialization error")
	ErrAtomicWrite       = errors.New("atomic write operation failed")
	ErrCorruptedFile     = errors.New("corrupted file detected")
	ErrFileNotFound      = errors.New("file does not exist")
)

// Storage defines the file persistence used for results, manifests and summaries.
// JSON holds the source of truth; CSV is a derived summary for spreadsheets.
type Storage interface {
	SaveJSON(filename string, v any) error
	LoadJSON(filename string, v any) error
	SaveCSV(filename string, records [][]string) error
	LoadCSV(filename string) ([][]string, error)
}

// FileStorage implements Storage on the local file system
type FileStorage struct {
	mu           sync.RWMutex // Protects concurrent operations
	atomicWrites bool         // Whether to use atomic writes for safety
}

// NewFileStorage creates a new FileStorage instance with atomic writes enabled
func NewFileStorage() *FileStorage {
	return &FileStorage{
		atomicWrites: true,
	}
}

// SetAtomicWrites enables or disables atomic write operations
func (fs *FileStorage) SetAtomicWrites(enabled bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.atomicWrites = enabled
}

// SaveJSON writes v as indented JSON, creating parent directories as needed
func (fs *FileStorage) SaveJSON(filename string, v any) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.write(filename, ErrJSONSerialization, func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	})
}

// LoadJSON decodes filename into v. A file that exists but does not decode is
// reported as ErrCorruptedFile.
func (fs *FileStorage) LoadJSON(filename string, v any) error {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, filename)
		}
		return fmt.Errorf("%w: cannot open %s: %v", ErrStorageOperation, filename, err)
	}
	defer func() { _ = file.Close() }()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCorruptedFile, filename, err)
	}
	return nil
}

// SaveCSV writes records as CSV, creating parent directories as needed
func (fs *FileStorage) SaveCSV(filename string, records [][]string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.write(filename, ErrCSVFormat, func(w io.Writer) error {
		writer := csv.NewWriter(w)
		if err := writer.WriteAll(records); err != nil {
			return err
		}
		return writer.Error()
	})
}

// LoadCSV reads every record of a CSV file
func (fs *FileStorage) LoadCSV(filename string) ([][]string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, filename)
		}
		return nil, fmt.Errorf("%w: cannot open CSV file %s: %v", ErrCSVFormat, filename, err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse CSV: %v", ErrCSVFormat, err)
	}
	return records, nil
}

// Exists reports whether path exists on disk
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// write picks the write strategy based on configuration
func (fs *FileStorage) write(filename string, encodeErr error, encode func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("%w: cannot create directory for %s: %v", ErrStorageOperation, filename, err)
	}
	if fs.atomicWrites {
		return fs.writeAtomic(filename, encodeErr, encode)
	}
	return fs.writeDirect(filename, encodeErr, encode)
}

// writeAtomic performs an atomic write using temporary file + rename
func (fs *FileStorage) writeAtomic(filename string, encodeErr error, encode func(io.Writer) error) error {
	tempFile := filename + ".tmp"

	file, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("%w: cannot create temp file: %v", ErrAtomicWrite, err)
	}

	if err := encode(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tempFile)
		return fmt.Errorf("%w: failed to encode %s: %v", encodeErr, filename, err)
	}

	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(tempFile)
		return fmt.Errorf("%w: failed to sync file: %v", ErrAtomicWrite, err)
	}

	_ = file.Close()

	// Atomic rename
	if err := os.Rename(tempFile, filename); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("%w: atomic rename failed: %v", ErrAtomicWrite, err)
	}

	return nil
}

// writeDirect performs direct file write (non-atomic)
func (fs *FileStorage) writeDirect(filename string, encodeErr error, encode func(io.Writer) error) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("%w: cannot create file: %v", ErrStorageOperation, err)
	}
	defer func() { _ = file.Close() }()

	if err := encode(file); err != nil {
		return fmt.Errorf("%w: failed to encode %s: %v", encodeErr, filename, err)
	}

	return file.Sync()
}
