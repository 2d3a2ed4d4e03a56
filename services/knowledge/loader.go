// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianNetOps/services/decision"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ParseRulePack validates a YAML rule pack and returns the compiled rule set.
//
// # Description
//
// A pack must carry name, domain, entity_type, and at least one summary
// field; every expression condition must parse. This is the same shape the
// decision engine demands at retrieval time, checked here so bad packs are
// rejected at the door instead of silently falling back at query time.
//
// # Inputs
//
//   - data: Raw YAML pack content.
//
// # Outputs
//
//   - *decision.RuleSet: The compiled rule set.
//   - error: Non-nil when the pack is malformed.
func ParseRulePack(data []byte) (*decision.RuleSet, error) {
	var rs decision.RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("invalid rule pack YAML: %w", err)
	}
	if rs.Name == "" {
		return nil, fmt.Errorf("rule pack missing name")
	}
	if rs.Domain == "" {
		return nil, fmt.Errorf("rule pack %s missing domain", rs.Name)
	}
	if rs.EntityType == "" {
		return nil, fmt.Errorf("rule pack %s missing entity_type", rs.Name)
	}
	if len(rs.SummaryFields) == 0 {
		return nil, fmt.Errorf("rule pack %s declares no summary_fields", rs.Name)
	}
	if err := rs.Compile(); err != nil {
		return nil, fmt.Errorf("rule pack %s: %w", rs.Name, err)
	}
	return &rs, nil
}

// LoaderOptions configures the PackLoader.
type LoaderOptions struct {
	// DebounceWindow is how long to wait for more file events before
	// reloading. Default: 500ms.
	DebounceWindow time.Duration
}

// DefaultLoaderOptions returns sensible defaults.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{
		DebounceWindow: 500 * time.Millisecond,
	}
}

// PackLoader loads executable rule packs from a directory into a
// knowledge store and keeps them fresh.
//
// # Description
//
// Each *.yaml file in the directory is one rule pack, stored whole as a
// single RuleDocument so the engine can parse the exact payload back out.
// Watch keeps the store in sync with the directory: file events are
// debounced, the directory is reloaded, and the onReload hook runs so the
// engine can drop its rule cache.
//
// Malformed packs are skipped with a warning; one bad file must not take
// down the rest of the directory.
//
// # Thread Safety
//
// PackLoader is safe for concurrent use. Reloads are serialized.
type PackLoader struct {
	dir      string
	writer   DocumentWriter
	embedder decision.EmbeddingProvider
	onReload func()
	debounce time.Duration

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	loaded  int
	skipped int
}

// NewPackLoader creates a loader for the given directory.
//
// # Inputs
//
//   - dir: Directory holding *.yaml rule packs.
//   - writer: Store to write packs into.
//   - embedder: Optional; vectors make packs reachable by similarity search.
//   - onReload: Optional hook invoked after every completed reload.
//   - opts: Optional configuration (nil uses defaults).
func NewPackLoader(dir string, writer DocumentWriter, embedder decision.EmbeddingProvider, onReload func(), opts *LoaderOptions) *PackLoader {
	if opts == nil {
		defaults := DefaultLoaderOptions()
		opts = &defaults
	}
	return &PackLoader{
		dir:      dir,
		writer:   writer,
		embedder: embedder,
		onReload: onReload,
		debounce: opts.DebounceWindow,
		done:     make(chan struct{}),
	}
}

// LoadAll loads every rule pack in the directory.
//
// # Outputs
//
//   - int: Number of packs loaded.
//   - error: Non-nil only when the directory itself cannot be read.
func (l *PackLoader) LoadAll(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read rule pack directory %s: %w", l.dir, err)
	}

	loaded, skipped := 0, 0
	for _, entry := range entries {
		if entry.IsDir() || !isPackFile(entry.Name()) {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())
		if err := l.loadFile(ctx, path); err != nil {
			slog.Warn("Skipping rule pack", "path", path, "error", err)
			skipped++
			continue
		}
		loaded++
	}

	l.loaded, l.skipped = loaded, skipped
	slog.Info("Rule pack directory loaded", "dir", l.dir, "loaded", loaded, "skipped", skipped)
	return loaded, nil
}

// Stats returns counts from the most recent load.
func (l *PackLoader) Stats() (loaded, skipped int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded, l.skipped
}

// loadFile validates one pack and upserts it as a single document.
func (l *PackLoader) loadFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	rs, err := StorePack(ctx, l.writer, l.embedder, filepath.Base(path), data)
	if err != nil {
		return err
	}

	slog.Debug("Loaded rule pack", "path", path, "name", rs.Name, "domain", rs.Domain, "entityType", rs.EntityType)
	return nil
}

// StorePack validates one rule pack and upserts it whole under the given
// source, replacing any prior version. Packs are never chunked: the engine
// parses the exact YAML payload back out at retrieval time. The embedder
// is optional; without vectors the pack is still reachable by text search
// and by its builtin fallback.
func StorePack(ctx context.Context, writer DocumentWriter, embedder decision.EmbeddingProvider,
	source string, data []byte) (*decision.RuleSet, error) {

	rs, err := ParseRulePack(data)
	if err != nil {
		return nil, err
	}

	props := RuleDocumentProperties{
		Title:           rs.Name,
		Content:         fmt.Sprintf("Analysis rule pack %s for %s entities in the %s domain.", rs.Name, rs.EntityType, rs.Domain),
		Domain:          rs.Domain,
		DeviceType:      rs.EntityType,
		Keywords:        []string{rs.Domain, rs.EntityType, "rules"},
		ExecutableRules: string(data),
		Source:          source,
		ParentSource:    source,
		IngestedAt:      time.Now().UnixMilli(),
	}

	var vectors [][]float32
	if embedder != nil {
		vec, err := embedder.Embed(ctx, props.Content)
		if err != nil {
			slog.Warn("Failed to embed rule pack, storing without vector", "source", source, "error", err)
		} else {
			vectors = [][]float32{vec}
		}
	}

	if err := writer.DeleteBySource(ctx, source); err != nil {
		slog.Warn("Failed to clear prior pack version", "source", source, "error", err)
	}
	if _, err := writer.BatchUpsert(ctx, []RuleDocumentProperties{props}, vectors); err != nil {
		return nil, err
	}
	return rs, nil
}

// Watch starts watching the pack directory for changes.
//
// # Description
//
// File events are debounced; after the window passes without further
// events the whole directory is reloaded and onReload fires. Reloading
// everything rather than diffing single files keeps delete and rename
// handling trivial at the cost of re-reading a small directory.
//
// # Inputs
//
//   - ctx: Context for cancellation. When canceled, watching stops.
//
// # Outputs
//
//   - error: Non-nil if the watcher could not be created or attached.
func (l *PackLoader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		return err
	}
	l.watcher = watcher

	go l.watchLoop(ctx)
	slog.Info("Watching rule pack directory", "dir", l.dir)
	return nil
}

// Stop stops the directory watcher.
func (l *PackLoader) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
		if l.watcher != nil {
			l.watcher.Close()
		}
	})
}

// watchLoop debounces events and triggers reloads.
func (l *PackLoader) watchLoop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if !isPackFile(filepath.Base(event.Name)) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(l.debounce)
				timerC = timer.C
			} else {
				timer.Reset(l.debounce)
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Rule pack watcher error", "error", err)
		case <-timerC:
			timer = nil
			timerC = nil
			if _, err := l.LoadAll(ctx); err != nil {
				slog.Error("Rule pack reload failed", "error", err)
				continue
			}
			if l.onReload != nil {
				l.onReload()
			}
		}
	}
}

func isPackFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
