// Package auditfile stores audit entries as JSON lines in size-rotated files.
package auditfile

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/curriculum-hub/curriculum-hub/internal/domain/audit"
)

const fileName = "workflow_audit.jsonl"

// maxLineSize bounds a single record when scanning.
const maxLineSize = 4 << 20

// Options configures rotation.
type Options struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
}

// Repository implements audit.Repository on rotated JSONL files.
type Repository struct {
	mu     sync.Mutex
	dir    string
	out    *lumberjack.Logger
	logger zerolog.Logger
}

// New opens (or creates) the audit log in opts.Dir.
func New(opts Options, logger zerolog.Logger) (*Repository, error) {
	if opts.Dir == "" {
		return nil, errors.New("audit dir is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create audit dir: %w", err)
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 5
	}
	return &Repository{
		dir: opts.Dir,
		out: &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, fileName),
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			LocalTime:  false,
		},
		logger: logger.With().Str("component", "auditfile").Logger(),
	}, nil
}

// Append writes entry as one line with a single Write call.
func (r *Repository) Append(_ context.Context, entry *audit.AuditEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.out.Write(line); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// Query scans the current file and the retained backups.
func (r *Repository) Query(ctx context.Context, filter audit.QueryFilter) ([]*audit.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	files, err := r.files()
	if err != nil {
		return nil, err
	}
	var out []*audit.AuditEntry
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := r.scan(path, filter)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

// Close closes the current file.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.out.Close()
}

// files lists rotated backups oldest first, then the current file.
func (r *Repository) files() ([]string, error) {
	dirEntries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit dir: %w", err)
	}
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	var backups []string
	current := ""
	for _, e := range dirEntries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case name == fileName:
			current = filepath.Join(r.dir, name)
		case strings.HasPrefix(name, base+"-") && strings.HasSuffix(name, filepath.Ext(fileName)):
			backups = append(backups, filepath.Join(r.dir, name))
		}
	}
	// Backup names embed a sortable timestamp.
	sort.Strings(backups)
	if current != "" {
		backups = append(backups, current)
	}
	return backups, nil
}

func (r *Repository) scan(path string, filter audit.QueryFilter) ([]*audit.AuditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}
	defer f.Close()

	var out []*audit.AuditEntry
	reader := bufio.NewScanner(f)
	reader.Buffer(make([]byte, 64*1024), maxLineSize)
	for reader.Scan() {
		line := reader.Bytes()
		if len(line) == 0 {
			continue
		}
		var e audit.AuditEntry
		if err := json.Unmarshal(line, &e); err != nil {
			r.logger.Warn().Err(err).Str("file", path).Msg("skipping malformed audit line")
			continue
		}
		if filter.Matches(&e) {
			out = append(out, &e)
		}
	}
	if err := reader.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to scan audit file: %w", err)
	}
	return out, nil
}
