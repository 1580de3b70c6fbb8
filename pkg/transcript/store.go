// Package transcript persists per-identity conversation transcripts as
// append-only JSONL files.
package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/warden/internal/observability"
	"github.com/harun/warden/internal/tracing"
)

// Message represents a single conversation turn
type Message struct {
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Entry represents a message with the identity it belongs to
type Entry struct {
	Identity string  `json:"identity"`
	Message  Message `json:"message"`
}

// Store manages per-identity transcript files
type Store struct {
	dir        string
	writeLocks map[string]*sync.Mutex
	locksMu    sync.RWMutex
}

// NewStore creates a transcript store rooted at dir
func NewStore(dir string) (*Store, error) {
	observability.EnsureRegistered()

	if dir == "" {
		return nil, fmt.Errorf("transcript directory is required")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}

	s := &Store{
		dir:        dir,
		writeLocks: make(map[string]*sync.Mutex),
	}

	log.Info().Str("dir", dir).Msg("Transcript store initialized")

	return s, nil
}

// validateIdentity rejects identities that could escape the store directory
func (s *Store) validateIdentity(identity string) error {
	if identity == "" {
		return fmt.Errorf("identity cannot be empty")
	}
	if strings.Contains(identity, "..") {
		return fmt.Errorf("identity cannot contain '..'")
	}
	if strings.ContainsAny(identity, "/\\") {
		return fmt.Errorf("identity cannot contain path separators")
	}
	if strings.Contains(identity, "\x00") {
		return fmt.Errorf("identity cannot contain null bytes")
	}
	return nil
}

func (s *Store) path(identity string) string {
	return filepath.Join(s.dir, identity+".jsonl")
}

func (s *Store) writeLock(identity string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	if lock, exists := s.writeLocks[identity]; exists {
		return lock
	}

	lock := &sync.Mutex{}
	s.writeLocks[identity] = lock
	return lock
}

func (s *Store) dropWriteLock(identity string) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	delete(s.writeLocks, identity)
}

// Append appends a message to an identity's transcript, creating the file on
// first use.
func (s *Store) Append(ctx context.Context, identity string, message Message) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithIdentity(ctx, identity)
	ctx, span := tracing.StartSpan(
		ctx,
		"warden.transcript",
		"transcript.append",
		attribute.String("identity", identity),
		attribute.String("role", message.Role),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	start := time.Now()
	defer func() {
		observability.RecordTranscriptAppend(time.Since(start))
	}()

	if err := s.validateIdentity(identity); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if message.Role == "" {
		return fmt.Errorf("message role cannot be empty")
	}
	if message.Content == "" {
		return fmt.Errorf("message content cannot be empty")
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	lock := s.writeLock(identity)
	lock.Lock()
	defer lock.Unlock()

	file, err := os.OpenFile(s.path(identity), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to open transcript file: %w", err)
	}
	defer file.Close()

	data, err := json.Marshal(Entry{Identity: identity, Message: message})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if _, err := file.Write(append(data, '\n')); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to write message: %w", err)
	}

	if err := file.Sync(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to sync file: %w", err)
	}

	logger.Debug().Str("role", message.Role).Msg("Message appended")

	return nil
}

// Load loads all messages from an identity's transcript. A missing transcript
// yields an empty slice; malformed lines are skipped with a warning.
func (s *Store) Load(ctx context.Context, identity string) ([]Entry, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithIdentity(ctx, identity)
	ctx, span := tracing.StartSpan(
		ctx,
		"warden.transcript",
		"transcript.load",
		attribute.String("identity", identity),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	if err := s.validateIdentity(identity); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	file, err := os.Open(s.path(identity))
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to open transcript file: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}

		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			logger.Warn().Int("line", lineNum).Err(err).Msg("Failed to parse line, skipping")
			continue
		}
		if entry.Message.Role == "" || entry.Message.Content == "" {
			logger.Warn().Int("line", lineNum).Msg("Invalid entry, skipping")
			continue
		}

		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read transcript file: %w", err)
	}

	logger.Debug().Int("messages", len(entries)).Msg("Transcript loaded")

	return entries, nil
}

// Delete removes an identity's transcript
func (s *Store) Delete(ctx context.Context, identity string) error {
	if err := s.validateIdentity(identity); err != nil {
		return err
	}

	lock := s.writeLock(identity)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(s.path(identity)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete transcript file: %w", err)
	}

	s.dropWriteLock(identity)

	log.Info().Str("identity", identity).Msg("Transcript deleted")

	return nil
}

// List returns the identities with a transcript on disk
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read transcript directory: %w", err)
	}

	var identities []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		identities = append(identities, strings.TrimSuffix(name, ".jsonl"))
	}

	return identities, nil
}

// LastModified returns the mtime of an identity's transcript file
func (s *Store) LastModified(identity string) (time.Time, error) {
	if err := s.validateIdentity(identity); err != nil {
		return time.Time{}, err
	}

	info, err := os.Stat(s.path(identity))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Dir returns the directory the store writes to
func (s *Store) Dir() string {
	return s.dir
}
