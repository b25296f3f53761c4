package skills

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

	"github.com/fsnotify/fsnotify"

	"github.com/donnabot/donna/internal/observability"
)

// defaultFetchTimeout bounds a data fetcher without an explicit timeout.
const defaultFetchTimeout = 10 * time.Second

// Registry holds the loaded skills and registered data fetchers.
type Registry struct {
	dir    string
	logger *observability.Logger

	mu sync.RWMutex
	// ordered preserves declaration order for ambiguity resolution.
	ordered []*Skill
	byName  map[string]*Skill

	fetcherMu sync.RWMutex
	fetchers  map[string]registeredFetcher

	watcher       *fsnotify.Watcher
	watchCancel   context.CancelFunc
	watchWg       sync.WaitGroup
	watchDebounce time.Duration
}

type registeredFetcher struct {
	fn      Fetcher
	timeout time.Duration
}

// NewRegistry creates a registry rooted at dir. Call Load before use.
func NewRegistry(dir string, logger *observability.Logger) *Registry {
	return &Registry{
		dir:           dir,
		logger:        logger.With("component", "skills"),
		byName:        make(map[string]*Skill),
		fetchers:      make(map[string]registeredFetcher),
		watchDebounce: 250 * time.Millisecond,
	}
}

// Load scans the skills directory and swaps the registry contents
// atomically. Individual bad documents are logged and skipped.
func (r *Registry) Load(ctx context.Context) error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("read skills dir: %w", err)
	}

	var ordered []*Skill
	byName := make(map[string]*Skill)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(r.dir, entry.Name(), SkillFilename)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		skill, err := ParseSkillFile(path)
		if err != nil {
			r.logger.Warn(ctx, "skill document rejected", "path", path, "error", err)
			continue
		}
		if _, dup := byName[skill.Name]; dup {
			r.logger.Warn(ctx, "duplicate skill name ignored", "name", skill.Name, "path", path)
			continue
		}
		ordered = append(ordered, skill)
		byName[skill.Name] = skill
	}

	r.mu.Lock()
	r.ordered = ordered
	r.byName = byName
	r.mu.Unlock()

	r.logger.Info(ctx, "skills loaded", "count", len(ordered))
	return nil
}

// Lookup returns a skill by exact name, the /skillname bypass path.
func (r *Registry) Lookup(name string) (*Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	skill, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return skill, ok
}

// Resolve finds the conversational skill whose trigger matches text:
// case-insensitive substring over the trigger union, ambiguity resolved to
// the first-declared skill.
func (r *Registry) Resolve(text string) (*Skill, bool) {
	lowered := strings.ToLower(text)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, skill := range r.ordered {
		if !skill.Conversational {
			continue
		}
		for _, trigger := range skill.Triggers {
			trigger = strings.ToLower(strings.TrimSpace(trigger))
			if trigger != "" && strings.Contains(lowered, trigger) {
				return skill, true
			}
		}
	}
	return nil, false
}

// List returns all loaded skills sorted by name.
func (r *Registry) List() []*Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Skill, len(r.ordered))
	copy(out, r.ordered)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RegisterFetcher binds a data fetcher by name. timeout <= 0 uses the
// default.
func (r *Registry) RegisterFetcher(name string, timeout time.Duration, fn Fetcher) {
	if name == "" || fn == nil {
		return
	}
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	r.fetcherMu.Lock()
	r.fetchers[name] = registeredFetcher{fn: fn, timeout: timeout}
	r.fetcherMu.Unlock()
}

// FetchData runs the skill's data fetcher. On any failure the skill still
// runs, with the sentinel placeholder.
func (r *Registry) FetchData(ctx context.Context, skill *Skill) json.RawMessage {
	if skill == nil || skill.DataFetcher == "" {
		return nil
	}

	r.fetcherMu.RLock()
	reg, ok := r.fetchers[skill.DataFetcher]
	r.fetcherMu.RUnlock()
	if !ok {
		r.logger.Warn(ctx, "data fetcher not registered", "skill", skill.Name, "fetcher", skill.DataFetcher)
		return FetchUnavailable
	}

	fetchCtx, cancel := context.WithTimeout(ctx, reg.timeout)
	defer cancel()

	data, err := reg.fn(fetchCtx)
	if err != nil {
		r.logger.Warn(ctx, "data fetch failed", "skill", skill.Name, "fetcher", skill.DataFetcher, "error", err)
		return FetchUnavailable
	}
	if len(data) == 0 {
		return FetchUnavailable
	}
	return data
}

// StartWatching reloads the registry when the skills directory changes,
// debounced.
func (r *Registry) StartWatching(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(r.dir); err != nil {
		_ = watcher.Close()
		return err
	}
	// Watch skill subdirectories too; SKILL.md edits land there.
	if entries, err := os.ReadDir(r.dir); err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				_ = watcher.Add(filepath.Join(r.dir, entry.Name()))
			}
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	r.watcher = watcher
	r.watchCancel = cancel

	r.watchWg.Add(1)
	go r.watchLoop(watchCtx)
	return nil
}

// Close stops the watcher, if running.
func (r *Registry) Close() error {
	if r.watchCancel != nil {
		r.watchCancel()
		r.watchCancel = nil
	}
	if r.watcher != nil {
		_ = r.watcher.Close()
		r.watcher = nil
	}
	r.watchWg.Wait()
	return nil
}

func (r *Registry) watchLoop(ctx context.Context) {
	defer r.watchWg.Done()

	var mu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(r.watchDebounce, func() {
			if err := r.Load(context.Background()); err != nil {
				r.logger.Warn(ctx, "skill reload failed", "error", err)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				if event.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						_ = r.watcher.Add(event.Name)
					}
				}
				scheduleReload()
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn(ctx, "skill watch error", "error", err)
		}
	}
}
