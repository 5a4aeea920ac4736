package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// journalWriter appends observations to a JSONL file, one record per line.
type journalWriter struct {
	file   *os.File
	writer *bufio.Writer
	path   string
}

// openJournalWriter opens path for appending, creating it if needed.
func openJournalWriter(path string) (*journalWriter, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	return &journalWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
	}, nil
}

// Write buffers one observation as a JSON line.
func (jw *journalWriter) Write(obs Observation) error {
	data, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("failed to marshal observation: %w", err)
	}

	// Single write per record so a crash never interleaves half lines
	data = append(data, '\n')
	if _, err := jw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write observation: %w", err)
	}
	return nil
}

// Close flushes, syncs to disk and closes the file.
func (jw *journalWriter) Close() error {
	if err := jw.writer.Flush(); err != nil {
		jw.file.Close() // Try to close anyway
		return fmt.Errorf("failed to flush journal: %w", err)
	}
	if err := jw.file.Sync(); err != nil {
		jw.file.Close()
		return fmt.Errorf("failed to sync journal: %w", err)
	}
	if err := jw.file.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	return nil
}

// journalReader reads observations back from a JSONL file.
type journalReader struct {
	file      *os.File
	scanner   *bufio.Scanner
	sessionID string
	line      int
}

// openJournalReader opens the journal at path. A missing file is reported
// with an error satisfying os.IsNotExist.
func openJournalReader(path, sessionID string) (*journalReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(file)
	// Long vectors produce long lines
	scanner.Buffer(make([]byte, 64*1024), 1024*1024) // 64KB initial, 1MB max

	return &journalReader{
		file:      file,
		scanner:   scanner,
		sessionID: sessionID,
	}, nil
}

// Read returns the next observation, or io.EOF at the end of the journal.
// Undecodable lines yield a CorruptHistoryError.
func (jr *journalReader) Read() (*Observation, error) {
	for jr.scanner.Scan() {
		jr.line++
		line := bytes.TrimSpace(jr.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var obs Observation
		if err := json.Unmarshal(line, &obs); err != nil {
			return nil, &CorruptHistoryError{SessionID: jr.sessionID, Line: jr.line, Err: err}
		}
		return &obs, nil
	}

	if err := jr.scanner.Err(); err != nil {
		return nil, &CorruptHistoryError{SessionID: jr.sessionID, Line: jr.line + 1, Err: err}
	}
	return nil, io.EOF
}

// ReadAll reads every remaining observation.
func (jr *journalReader) ReadAll() ([]Observation, error) {
	entries := []Observation{}

	for {
		obs, err := jr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *obs)
	}

	return entries, nil
}

// Close closes the underlying file.
func (jr *journalReader) Close() error {
	if err := jr.file.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	return nil
}
