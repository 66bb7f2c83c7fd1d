// Package registry holds named data-backed models, caching constructed
// models and rebuilding them when their data files change on disk.
package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"surromc/model"
)

// ModelSpec describes how to build one data-backed model.
type ModelSpec struct {
	Name       string  `yaml:"name"`
	InputFile  string  `yaml:"input_file"`
	OutputFile string  `yaml:"output_file"`
	Cost       float64 `yaml:"cost"`
	SkipHeader int     `yaml:"skip_header"`
	WaitCost   bool    `yaml:"wait_cost_duration"`
	GBK        bool    `yaml:"gbk"`
}

// Registry maps model names to lazily constructed DataModels. Models are
// immutable; a file change evicts the cached model so the next Get
// rebuilds it from the current file contents.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]ModelSpec

	cache  *lru.Cache[string, *model.DataModel]
	logger *zap.Logger
}

// New creates a registry with the given cache capacity. logger may be nil.
func New(cacheSize int, logger *zap.Logger) (*Registry, error) {
	if cacheSize <= 0 {
		cacheSize = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.New[string, *model.DataModel](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Registry{
		specs:  make(map[string]ModelSpec),
		cache:  cache,
		logger: logger,
	}, nil
}

// Register adds a model spec. Registering an existing name replaces the
// spec and evicts any cached model.
func (r *Registry) Register(spec ModelSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("model spec has no name")
	}
	if spec.InputFile == "" || spec.OutputFile == "" {
		return fmt.Errorf("model %s: input and output files required", spec.Name)
	}

	r.mu.Lock()
	r.specs[spec.Name] = spec
	r.mu.Unlock()
	r.cache.Remove(spec.Name)
	return nil
}

// RegisterAll adds each spec, stopping at the first failure.
func (r *Registry) RegisterAll(specs []ModelSpec) error {
	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

// Names returns the registered model names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	return names
}

// Get returns the model for name, building it on first use.
func (r *Registry) Get(name string) (*model.DataModel, error) {
	if m, ok := r.cache.Get(name); ok {
		return m, nil
	}

	r.mu.RLock()
	spec, ok := r.specs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("model %s not registered", name)
	}

	start := time.Now()
	opts := []model.Option{model.SkipHeaderRows(spec.SkipHeader)}
	if spec.WaitCost {
		opts = append(opts, model.WaitCostDuration())
	}
	if spec.GBK {
		opts = append(opts, model.GBK())
	}
	m, err := model.NewDataModel(spec.InputFile, spec.OutputFile, spec.Cost, opts...)
	if err != nil {
		return nil, fmt.Errorf("building model %s: %w", name, err)
	}

	r.cache.Add(name, m)
	r.logger.Info("model loaded",
		zap.String("model", name),
		zap.Int("rows", m.Len()),
		zap.Int("input_dim", m.InputDim()),
		zap.Int("output_dim", m.OutputDim()),
		zap.Duration("elapsed", time.Since(start)))
	return m, nil
}

// Invalidate evicts a cached model.
func (r *Registry) Invalidate(name string) {
	if r.cache.Remove(name) {
		r.logger.Info("model evicted", zap.String("model", name))
	}
}

// Watch evicts models whose data files change on disk. It returns after
// starting the watch goroutine, which runs until ctx is done.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	r.mu.RLock()
	dirs := make(map[string]struct{})
	for _, spec := range r.specs {
		dirs[filepath.Dir(spec.InputFile)] = struct{}{}
		dirs[filepath.Dir(spec.OutputFile)] = struct{}{}
	}
	r.mu.RUnlock()

	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				r.invalidatePath(event.Name)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn("watch error", zap.Error(err))
			}
		}
	}()
	return nil
}

func (r *Registry) invalidatePath(path string) {
	r.mu.RLock()
	var names []string
	for name, spec := range r.specs {
		if samePath(spec.InputFile, path) || samePath(spec.OutputFile, path) {
			names = append(names, name)
		}
	}
	r.mu.RUnlock()

	for _, name := range names {
		r.logger.Info("data file changed", zap.String("model", name), zap.String("path", path))
		r.Invalidate(name)
	}
}

func samePath(a, b string) bool {
	if a == b {
		return true
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}
