package catalog

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"toolgate/internal/infra/telemetry"
)

const defaultReloadDebounce = 200 * time.Millisecond

// Update is broadcast after a successful reload.
type Update struct {
	Catalog *Catalog
	Added   []string
	Removed []string
}

// Provider serves the current catalog snapshot and swaps it when the
// configuration file changes. Snapshots are immutable; in-flight dispatches
// keep the snapshot they started with.
type Provider struct {
	logger     *zap.Logger
	loader     *Loader
	configPath string
	debounce   time.Duration

	current  atomic.Pointer[Catalog]
	revision atomic.Uint64

	subsMu sync.Mutex
	subs   map[chan Update]struct{}

	reloadMu  sync.Mutex
	watchOnce sync.Once
}

func NewProvider(initial *Catalog, loader *Loader, configPath string, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loader == nil {
		loader = NewLoader(logger)
	}
	p := &Provider{
		logger:     logger.Named("catalog_provider"),
		loader:     loader,
		configPath: configPath,
		debounce:   defaultReloadDebounce,
		subs:       make(map[chan Update]struct{}),
	}
	p.revision.Store(1)
	p.current.Store(initial.withRevision(1))
	return p
}

// Current returns the active catalog snapshot.
func (p *Provider) Current() *Catalog {
	return p.current.Load()
}

// Subscribe returns a channel receiving reload updates until ctx is done.
func (p *Provider) Subscribe(ctx context.Context) <-chan Update {
	ch := make(chan Update, 1)
	p.subsMu.Lock()
	p.subs[ch] = struct{}{}
	p.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		p.subsMu.Lock()
		delete(p.subs, ch)
		p.subsMu.Unlock()
	}()
	return ch
}

// Reload re-reads the configuration file and swaps the catalog when the tool
// set changed. A failed reload keeps the previous catalog.
func (p *Provider) Reload(ctx context.Context) error {
	p.reloadMu.Lock()
	defer p.reloadMu.Unlock()

	next, err := p.loader.LoadCatalog(ctx, p.configPath)
	if err != nil {
		return err
	}
	prev := p.current.Load()
	added, removed := diffNames(prev, next)
	if len(added) == 0 && len(removed) == 0 && prev.ETag() != "" && prev.ETag() == next.ETag() {
		return nil
	}

	revision := p.revision.Add(1)
	next = next.withRevision(revision)
	p.current.Store(next)
	p.logger.Info("tool catalog reloaded",
		telemetry.EventField(telemetry.EventCatalogReload),
		zap.Uint64("revision", revision),
		zap.String("etag", next.ETag()),
		zap.Int("tools", next.Len()),
		zap.Strings("added", added),
		zap.Strings("removed", removed),
	)
	p.broadcast(Update{Catalog: next, Added: added, Removed: removed})
	return nil
}

// Watch starts the file watcher once; it stops when ctx is done.
func (p *Provider) Watch(ctx context.Context) {
	p.watchOnce.Do(func() {
		go p.runWatcher(ctx)
	})
}

func (p *Provider) broadcast(update Update) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	for ch := range p.subs {
		select {
		case ch <- update:
		default:
		}
	}
}

func (p *Provider) runWatcher(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.logger.Warn("config watcher failed", zap.Error(err))
		return
	}
	defer watcher.Close()

	// Editors often replace the file, so watch its directory.
	dir := filepath.Dir(p.configPath)
	if err := watcher.Add(dir); err != nil {
		p.logger.Warn("config watcher add failed", zap.String("path", dir), zap.Error(err))
		return
	}
	target := filepath.Clean(p.configPath)

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("config watcher error", zap.Error(err))
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(p.debounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(p.debounce)
		case <-timerChan(timer):
			timer = nil
			if err := p.Reload(ctx); err != nil {
				msg := "config reload failed"
				if ValidationError(err) {
					msg = "reloaded catalog is invalid; keeping previous catalog"
				}
				p.logger.Warn(msg, zap.Error(err))
			}
		}
	}
}

func timerChan(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}

func diffNames(prev, next *Catalog) ([]string, []string) {
	var added, removed []string
	for _, name := range next.Names() {
		if _, ok := prev.Lookup(name); !ok {
			added = append(added, name)
		}
	}
	for _, name := range prev.Names() {
		if _, ok := next.Lookup(name); !ok {
			removed = append(removed, name)
		}
	}
	return added, removed
}
