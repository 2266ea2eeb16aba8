// Package events decodes raw agent log files into ordered event records.
//
// Agent logs are newline-delimited JSON: each line is an independent
// object. The decoder is deliberately forgiving - a corrupt line never
// aborts the run, it is skipped and the rest of the file is processed.
package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/harrison/trajector/internal/filelock"
)

// Event type discriminators understood by the converter. Both upstream
// encodings use "user" and "assistant"; the flat encoding additionally
// emits "tool_call" and "tool_result" as standalone records.
const (
	TypeUser       = "user"
	TypeAssistant  = "assistant"
	TypeToolCall   = "tool_call"
	TypeToolResult = "tool_result"
)

// RawEvent is one decoded record from the agent log. Shape is not
// enforced beyond the type discriminator; accessors return zero values
// for missing or mistyped fields.
type RawEvent map[string]any

// Type returns the event's type discriminator, or "" if absent.
func (e RawEvent) Type() string {
	return e.String("type")
}

// Timestamp returns the event's timestamp passed through unparsed.
func (e RawEvent) Timestamp() string {
	return e.String("timestamp")
}

// String returns the named field as a string, or "" if missing or not a
// string.
func (e RawEvent) String(key string) string {
	s, _ := e[key].(string)
	return s
}

// Map returns the named field as a nested object, or nil.
func (e RawEvent) Map(key string) map[string]any {
	m, _ := e[key].(map[string]any)
	return m
}

// DecodeOptions bound how much of a log file the decoder will hold in
// memory. Zero values disable the corresponding limit.
type DecodeOptions struct {
	// MaxLineBytes caps the size of a single log line. Lines beyond
	// the cap stop the scan with an error. Default 10MB.
	MaxLineBytes int

	// MaxEvents caps how many decoded events are retained. Further
	// lines are ignored once the cap is reached.
	MaxEvents int
}

const defaultMaxLineBytes = 10 * 1024 * 1024

// ReadLogFile decodes every valid JSON line of the log file at path,
// preserving line order. Blank lines and lines that fail to parse are
// skipped. The file is read under a shared advisory lock so a
// still-flushing writer holding the exclusive lock is never read
// mid-write; the lock is released on all return paths.
//
// An empty result with a nil error means the file held no valid events.
func ReadLogFile(path string, opts DecodeOptions) ([]RawEvent, error) {
	var evs []RawEvent
	err := filelock.WithReadLock(path, func() error {
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer file.Close()

		evs, err = decode(file, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return evs, nil
}

// decode scans one JSON record per line from the open file.
func decode(file *os.File, opts DecodeOptions) ([]RawEvent, error) {
	maxLine := opts.MaxLineBytes
	if maxLine <= 0 {
		maxLine = defaultMaxLineBytes
	}

	scanner := bufio.NewScanner(file)
	// Agent logs routinely carry whole file contents in a single line.
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLine)

	var events []RawEvent
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event RawEvent
		if err := json.Unmarshal(line, &event); err != nil {
			// Corrupt line: skip, keep the run alive.
			continue
		}
		events = append(events, event)

		if opts.MaxEvents > 0 && len(events) >= opts.MaxEvents {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading log file: %w", err)
	}

	return events, nil
}
