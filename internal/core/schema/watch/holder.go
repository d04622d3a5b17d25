// Package watch keeps a sealed registry and its decoder current with a
// schema description file, swapping in a new snapshot on every good reload.
package watch

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zeusync/apischema/internal/core/observability/log"
	"github.com/zeusync/apischema/internal/core/schema/catalog"
	"github.com/zeusync/apischema/internal/core/schema/decoder"
	"github.com/zeusync/apischema/internal/core/schema/loader"
	"github.com/zeusync/apischema/internal/core/schema/registry"
)

// Snapshot is one immutable generation of schemas. Decodes started against a
// snapshot keep using it after a reload.
type Snapshot struct {
	Registry *registry.Registry
	Decoder  *decoder.Decoder
	LoadedAt time.Time
}

type Option func(*Holder)

// WithCatalog controls whether the built-in catalog is loaded beneath the
// file. Entities in the file replace same-named catalog entities.
func WithCatalog(enabled bool) Option {
	return func(h *Holder) { h.withCatalog = enabled }
}

func WithRegistryOptions(opts ...registry.Option) Option {
	return func(h *Holder) { h.registryOpts = append(h.registryOpts, opts...) }
}

func WithDecoderOptions(opts ...decoder.Option) Option {
	return func(h *Holder) { h.decoderOpts = append(h.decoderOpts, opts...) }
}

func WithLogger(l log.Log) Option {
	return func(h *Holder) { h.logger = l }
}

// Holder provides thread-safe access to the current snapshot with hot reload support.
type Holder struct {
	current atomic.Pointer[Snapshot]

	path         string
	withCatalog  bool
	registryOpts []registry.Option
	decoderOpts  []decoder.Option
	logger       log.Log

	reloadMu sync.Mutex
	mu       sync.RWMutex
	onChange []func(*Snapshot)
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New builds the first snapshot. path may be empty to serve the catalog alone.
func New(path string, opts ...Option) (*Holder, error) {
	h := &Holder{
		withCatalog: true,
		logger:      log.Nop(),
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.Named("watch")

	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("absolute path: %w", err)
		}
		h.path = abs
	}

	snap, err := h.build()
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	h.current.Store(snap)
	return h, nil
}

// Get returns the current snapshot.
func (h *Holder) Get() *Snapshot { return h.current.Load() }

func (h *Holder) Registry() *registry.Registry { return h.Get().Registry }
func (h *Holder) Decoder() *decoder.Decoder    { return h.Get().Decoder }

// Path is the watched description file, empty when serving the catalog alone.
func (h *Holder) Path() string { return h.path }

func (h *Holder) build() (*Snapshot, error) {
	doc := &loader.Document{}
	if h.withCatalog {
		base, err := catalog.Document()
		if err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		doc = base
	}
	if h.path != "" {
		fileDoc, err := loader.LoadFile(h.path)
		if err != nil {
			return nil, err
		}
		doc = loader.Merge(doc, fileDoc)
	}

	reg := registry.New(append([]registry.Option{registry.WithLogger(h.logger)}, h.registryOpts...)...)
	if err := doc.Apply(reg); err != nil {
		return nil, err
	}
	reg.Seal()

	dec := decoder.New(reg, append([]decoder.Option{decoder.WithLogger(h.logger)}, h.decoderOpts...)...)
	return &Snapshot{Registry: reg, Decoder: dec, LoadedAt: time.Now()}, nil
}

// Reload rebuilds the snapshot from disk.
// Returns error if loading fails (keeps the old snapshot).
func (h *Holder) Reload() error {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	h.logger.Info("reloading schemas", log.String("path", h.path))

	next, err := h.build()
	if err != nil {
		h.logger.Error("schema reload failed, keeping old schemas", log.Error(err))
		return fmt.Errorf("reload schemas: %w", err)
	}

	prev := h.current.Load()
	if prev.Registry.Fingerprint() == next.Registry.Fingerprint() {
		h.logger.Debug("schemas unchanged", log.Hex("fingerprint", prev.Registry.Fingerprint()))
		return nil
	}
	h.current.Store(next)

	h.logger.Info("schemas reloaded",
		log.Hex("old", prev.Registry.Fingerprint()),
		log.Hex("new", next.Registry.Fingerprint()),
		log.String("generation", next.Registry.Generation().String()))

	h.mu.RLock()
	callbacks := append([]func(*Snapshot){}, h.onChange...)
	h.mu.RUnlock()
	for _, fn := range callbacks {
		fn(next)
	}
	return nil
}

// OnChange registers a callback invoked after each successful reload that
// changed the schemas.
func (h *Holder) OnChange(fn func(*Snapshot)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// WatchFile starts watching the description file. Changes trigger a reload.
func (h *Holder) WatchFile() error {
	if h.path == "" {
		return fmt.Errorf("watch: no schema file configured")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// The directory survives editors that save by rename.
	if err = watcher.Add(filepath.Dir(h.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	h.mu.Lock()
	h.watcher = watcher
	h.mu.Unlock()

	go h.watchLoop(watcher)

	h.logger.Info("watching schema file", log.String("path", h.path))
	return nil
}

// WatchSignals reloads on SIGHUP until Stop.
func (h *Holder) WatchSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-sigCh:
				h.logger.Info("received SIGHUP")
				_ = h.Reload()
			case <-h.stopCh:
				return
			}
		}
	}()
}

// Stop ends file and signal watching. It is safe to call more than once.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.watcher != nil {
			_ = h.watcher.Close()
		}
	})
}

func (h *Holder) watchLoop(watcher *fsnotify.Watcher) {
	filename := filepath.Base(h.path)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				h.logger.Debug("schema file changed",
					log.String("event", event.Op.String()),
					log.String("file", event.Name))
				_ = h.Reload()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error("file watcher error", log.Error(err))

		case <-h.stopCh:
			return
		}
	}
}
