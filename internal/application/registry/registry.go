package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/curriculum-hub/curriculum-hub/internal/domain/errs"
	"github.com/curriculum-hub/curriculum-hub/internal/domain/workflow"
)

// Registry holds validated templates keyed by id. Stored templates are
// never mutated; callers receive shared read-only values.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*workflow.Template
	repo      workflow.Repository
	logger    zerolog.Logger
}

// New creates a registry. repo may be nil, in which case runtime templates
// live only in memory.
func New(repo workflow.Repository, logger zerolog.Logger) *Registry {
	return &Registry{
		templates: make(map[string]*workflow.Template),
		repo:      repo,
		logger:    logger.With().Str("service", "registry").Logger(),
	}
}

// NewWithBuiltins creates a registry and registers the built-in templates.
func NewWithBuiltins(repo workflow.Repository, logger zerolog.Logger) (*Registry, error) {
	r := New(repo, logger)
	for _, t := range workflow.Builtins() {
		if _, err := r.Register(t); err != nil {
			return nil, fmt.Errorf("failed to register builtin template %s: %w", t.ID, err)
		}
	}
	return r, nil
}

// Register validates t and stores it. Templates are immutable once
// registered: an id that is already taken yields KindConflict.
func (r *Registry) Register(t workflow.Template) (*workflow.Template, error) {
	const op = "registry.Register"
	built, err := workflow.Build(t)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidWorkflow, op, err, "")
	}
	r.mu.Lock()
	if existing, ok := r.templates[built.ID]; ok {
		r.mu.Unlock()
		return nil, conflict(op, existing)
	}
	r.templates[built.ID] = built
	r.mu.Unlock()

	r.logger.Info().
		Str("template_id", built.ID).
		Str("version", built.Version).
		Msg("template registered")
	return built, nil
}

// Save registers t and persists it when a repository is configured.
// An id that is already registered is rejected before anything is written.
func (r *Registry) Save(ctx context.Context, t workflow.Template, createdBy string) (*workflow.Template, error) {
	const op = "registry.Save"
	built, err := workflow.Build(t)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidWorkflow, op, err, "")
	}
	r.mu.RLock()
	existing, ok := r.templates[built.ID]
	r.mu.RUnlock()
	if ok {
		return nil, conflict(op, existing)
	}
	if r.repo != nil {
		data, err := json.Marshal(built)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal template: %w", err)
		}
		rec := &workflow.Record{
			TemplateID: built.ID,
			Version:    built.Version,
			Name:       built.Name,
			Definition: data,
			CreatedAt:  time.Now().UTC(),
		}
		if createdBy != "" {
			rec.CreatedBy = &createdBy
		}
		if err := r.repo.Save(ctx, rec); err != nil {
			return nil, errs.Wrap(errs.KindInternal, op, err, "failed to persist template")
		}
	}
	return r.Register(*built)
}

func conflict(op string, existing *workflow.Template) error {
	return errs.E(errs.KindConflict, op,
		fmt.Sprintf("template %s is already registered (version %s)", existing.ID, existing.Version))
}

// Get returns the template with id.
func (r *Registry) Get(id string) (*workflow.Template, error) {
	r.mu.RLock()
	t, ok := r.templates[id]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.E(errs.KindNotFound, "registry.Get", "template not found: "+id)
	}
	return t, nil
}

// List returns every template sorted by id.
func (r *Registry) List() []*workflow.Template {
	r.mu.RLock()
	out := make([]*workflow.Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadDir registers every .json, .yaml and .yml template in dir.
// A file that fails validation aborts the load.
func (r *Registry) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read template dir: %w", err)
	}
	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		path := filepath.Join(dir, entry.Name())
		t, err := workflow.DecodeFile(path)
		if err != nil {
			return loaded, errs.Wrap(errs.KindInvalidWorkflow, "registry.LoadDir", err, path)
		}
		if _, err := r.Register(*t); err != nil {
			return loaded, err
		}
		loaded++
	}
	return loaded, nil
}

// LoadRepository registers every persisted runtime template.
func (r *Registry) LoadRepository(ctx context.Context) (int, error) {
	if r.repo == nil {
		return 0, nil
	}
	recs, err := r.repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list templates: %w", err)
	}
	loaded := 0
	for _, rec := range recs {
		t, err := workflow.ParseTemplate(rec.Definition)
		if err != nil {
			r.logger.Warn().Err(err).Str("template_id", rec.TemplateID).Msg("skipping undecodable template")
			continue
		}
		if _, err := r.Register(*t); err != nil {
			r.logger.Warn().Err(err).Str("template_id", rec.TemplateID).Msg("skipping invalid template")
			continue
		}
		loaded++
	}
	return loaded, nil
}
