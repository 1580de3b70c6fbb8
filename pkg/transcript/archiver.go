package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harun/warden/internal/observability"
)

const DefaultArchiveAge = 24 * time.Hour

// Archiver moves transcripts that have not been written to for a while into
// an archive directory, keeping the live store small. Scheduling is the
// caller's concern (the daemon runs it on a cron schedule).
type Archiver struct {
	store      *Store
	archiveDir string
	maxAge     time.Duration
}

// NewArchiver creates an archiver that moves transcripts older than maxAge
// into archiveDir.
func NewArchiver(store *Store, archiveDir string, maxAge time.Duration) (*Archiver, error) {
	if archiveDir == "" {
		return nil, fmt.Errorf("archive directory is required")
	}
	if maxAge <= 0 {
		maxAge = DefaultArchiveAge
	}

	if err := os.MkdirAll(archiveDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	return &Archiver{
		store:      store,
		archiveDir: archiveDir,
		maxAge:     maxAge,
	}, nil
}

// Run archives every transcript idle past the age threshold. Returns the
// number of transcripts moved. Per-file failures are logged and skipped so a
// single bad file cannot stall the rest.
func (a *Archiver) Run() (int, error) {
	identities, err := a.store.List()
	if err != nil {
		return 0, fmt.Errorf("failed to list transcripts: %w", err)
	}

	now := time.Now()
	archived := 0

	for _, identity := range identities {
		modified, err := a.store.LastModified(identity)
		if err != nil {
			log.Warn().Err(err).Str("identity", identity).Msg("Failed to stat transcript, skipping")
			continue
		}

		if now.Sub(modified) <= a.maxAge {
			continue
		}

		if err := a.archive(identity); err != nil {
			log.Error().Err(err).Str("identity", identity).Msg("Failed to archive transcript")
			continue
		}

		archived++
		observability.RecordTranscriptArchived()
	}

	if archived > 0 {
		log.Info().Int("archived", archived).Msg("Transcript archive sweep complete")
	}

	return archived, nil
}

// archive moves one transcript into the archive directory, stamping the file
// name so repeated archives of the same identity never collide.
func (a *Archiver) archive(identity string) error {
	lock := a.store.writeLock(identity)
	lock.Lock()
	defer lock.Unlock()

	src := a.store.path(identity)
	dst := filepath.Join(a.archiveDir, fmt.Sprintf("%s-%d.jsonl", identity, time.Now().Unix()))

	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move transcript: %w", err)
	}

	a.store.dropWriteLock(identity)
	return nil
}
