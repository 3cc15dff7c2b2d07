package filtz

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// FileLookup is a Lookup backed by a YAML file mapping extension points to
// pipeline configurations, reloaded automatically when the file changes.
//
// The file is a map of filter type to any accepted configuration shape:
//
//	org.example.auth.login.v1: "auth.CheckDomain"
//	org.example.enrollment.started.v1:
//	  - "enrollment.CheckCapacity"
//	  - "enrollment.RecordAudit"
//	org.example.billing.checkout.v1:
//	  pipeline: ["billing.ApplyDiscount", "billing.ChargeCard"]
//	  fail_silently: false
//
// Reads serve an immutable snapshot swapped atomically on reload, so a
// reload never corrupts an execution that already looked up its
// configuration, and readers never block. A reload that fails to parse
// keeps the last good snapshot.
type FileLookup struct {
	path     string
	snapshot atomic.Pointer[map[FilterType]Config]
	watcher  *fsnotify.Watcher
	cancel   context.CancelFunc
}

// NewFileLookup creates a FileLookup watching path. The file is loaded
// immediately; a missing file starts an empty snapshot and is picked up
// when created, but a file that exists and fails to parse is an error.
func NewFileLookup(path string) (*FileLookup, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &FileLookup{
		path:    absPath,
		watcher: watcher,
		cancel:  cancel,
	}
	empty := map[FilterType]Config{}
	p.snapshot.Store(&empty)

	if err := p.Reload(); err != nil && !os.IsNotExist(err) {
		cancel()
		_ = watcher.Close()
		return nil, err
	}

	// Watch the directory, not the file: editors and deploy tools replace
	// config files by rename, which drops a watch on the file itself.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		cancel()
		_ = watcher.Close()
		return nil, fmt.Errorf("watch config directory: %w", err)
	}

	go p.watchLoop(ctx)
	return p, nil
}

// Config implements Lookup from the current snapshot.
func (p *FileLookup) Config(filterType FilterType) (Config, error) {
	table := *p.snapshot.Load()
	cfg := table[filterType]
	cfg.Pipeline = append([]string(nil), cfg.Pipeline...)
	return cfg, nil
}

// Reload re-reads the file and swaps the snapshot. Executions that already
// read their configuration are unaffected. On error the previous snapshot
// stays in place.
func (p *FileLookup) Reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return err
	}

	var raw map[FilterType]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	table := make(map[FilterType]Config, len(raw))
	for filterType, node := range raw {
		var cfg Config
		if err := node.Decode(&cfg); err != nil {
			var shapeErr *ShapeError
			if errors.As(err, &shapeErr) {
				shapeErr.FilterType = filterType
				return shapeErr
			}
			return fmt.Errorf("config for %q: %w", filterType, err)
		}
		table[filterType] = cfg
	}

	p.snapshot.Store(&table)
	return nil
}

// Close stops the watcher. The last snapshot remains readable.
func (p *FileLookup) Close() error {
	p.cancel()
	return p.watcher.Close()
}

func (p *FileLookup) watchLoop(ctx context.Context) {
	const debounce = 100 * time.Millisecond
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Coalesce bursts of events from a single save.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				_ = p.Reload() //nolint:errcheck
			})
		case _, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}
