package skills

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentcore/runtime/pkg/models"
)

// debounceWindow coalesces bursts of filesystem events into one reload,
// per spec.md §4.5.
const debounceWindow = 250 * time.Millisecond

// Manager discovers skill directories under Root, parses their
// manifests, and keeps a Registry in sync via a filesystem watch.
// Grounded on internal/skills/manager.go's Manager (fsnotify.Watcher +
// per-path debounce via time.AfterFunc), narrowed to spec.md §4.5's
// "reload only the changed skill's subtree" rule rather than the
// teacher's whole-catalogue RefreshEligible pass.
type Manager struct {
	Root     string
	Registry *Registry
	Log      *slog.Logger

	mu     sync.RWMutex
	skills map[string]*models.Skill

	watcher *fsnotify.Watcher
	timers  map[string]*time.Timer
	done    chan struct{}
}

// NewManager builds a Manager rooted at root. Call Discover once, then
// StartWatching to begin hot reload.
func NewManager(root string, registry *Registry, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		Root:     root,
		Registry: registry,
		Log:      log.With("component", "skills.manager"),
		skills:   map[string]*models.Skill{},
		timers:   map[string]*time.Timer{},
	}
}

// Discover enumerates immediate subdirectories of Root, parses each
// manifest, and publishes the initial registry snapshot. Per spec.md
// §4.5 step 2, a parse error skips that skill with a structured log
// rather than failing the whole server.
func (m *Manager) Discover() error {
	entries, err := os.ReadDir(m.Root)
	if err != nil {
		return fmt.Errorf("read skills root: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(m.Root, e.Name())
		m.loadLocked(dir)
	}
	m.publishLocked()
	return nil
}

// loadLocked parses the manifest at dir and installs it into m.skills.
// Caller must hold m.mu.
func (m *Manager) loadLocked(dir string) {
	manifestPath := filepath.Join(dir, SkillFilename)
	skill, err := ParseFile(manifestPath)
	if err != nil {
		m.Log.Warn("skipping skill: parse error", "dir", dir, "error", err)
		return
	}
	if existing, ok := m.skills[skill.Name]; ok && existing.Dir != dir {
		m.Log.Warn("duplicate skill name, later load wins", "name", skill.Name, "dir", dir)
	}
	m.skills[skill.Name] = skill
}

// removeLocked deletes any skill rooted at dir. Caller must hold m.mu.
func (m *Manager) removeLocked(dir string) {
	for name, sk := range m.skills {
		if sk.Dir == dir {
			delete(m.skills, name)
		}
	}
}

func (m *Manager) publishLocked() {
	snap := make(map[string]*models.Skill, len(m.skills))
	for k, v := range m.skills {
		snap[k] = v
	}
	m.Registry.Publish(snap)
}

// Get returns one loaded skill by name.
func (m *Manager) Get(name string) (*models.Skill, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sk, ok := m.skills[name]
	return sk, ok
}

// List returns every currently loaded skill.
func (m *Manager) List() []*models.Skill {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Skill, 0, len(m.skills))
	for _, sk := range m.skills {
		out = append(out, sk)
	}
	return out
}

// SystemPrompts concatenates the body of every loaded skill, for
// composing the agent loop's Building-phase system prompt.
func (m *Manager) SystemPrompts() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := ""
	for _, sk := range m.skills {
		if sk.Body == "" {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += sk.Body
	}
	return out
}

// StartWatching begins a filesystem watch on Root and every existing
// skill subdirectory, reloading only the affected skill's subtree on
// change, debounced by debounceWindow.
func (m *Manager) StartWatching() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	m.watcher = w
	m.done = make(chan struct{})

	if err := w.Add(m.Root); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch skills root: %w", err)
	}
	for _, dir := range m.watchedDirs() {
		_ = w.Add(dir)
	}

	go m.watchLoop()
	return nil
}

func (m *Manager) watchedDirs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dirs := make([]string, 0, len(m.skills))
	for _, sk := range m.skills {
		dirs = append(dirs, sk.Dir)
	}
	return dirs
}

func (m *Manager) watchLoop() {
	for {
		select {
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create != 0 {
				if dir := m.skillDirFor(ev.Name); dir != "" {
					if info, err := os.Stat(dir); err == nil && info.IsDir() {
						_ = m.watcher.Add(dir)
					}
				}
			}
			m.scheduleReload(ev.Name)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.Log.Warn("watch error", "error", err)
		case <-m.done:
			return
		}
	}
}

// scheduleReload debounces reload of the skill directory containing
// path: repeated events within debounceWindow collapse into one reload.
func (m *Manager) scheduleReload(path string) {
	dir := m.skillDirFor(path)
	if dir == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.timers[dir]; ok {
		t.Stop()
	}
	m.timers[dir] = time.AfterFunc(debounceWindow, func() {
		m.reloadDir(dir)
	})
}

// skillDirFor maps a changed path to the immediate subdirectory of Root
// that owns it (or "" if path is Root itself or outside it).
func (m *Manager) skillDirFor(path string) string {
	rel, err := filepath.Rel(m.Root, path)
	if err != nil || rel == "." || rel == ".." {
		return ""
	}
	first := rel
	if idx := indexOfSeparator(rel); idx >= 0 {
		first = rel[:idx]
	}
	return filepath.Join(m.Root, first)
}

func indexOfSeparator(p string) int {
	for i, r := range p {
		if r == filepath.Separator {
			return i
		}
	}
	return -1
}

// reloadDir re-parses the manifest for one skill directory and
// republishes the registry snapshot, per spec.md §4.5's "reload only
// the changed skill's subtree" rule.
func (m *Manager) reloadDir(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(filepath.Join(dir, SkillFilename)); os.IsNotExist(err) {
		m.removeLocked(dir)
	} else {
		m.removeLocked(dir)
		m.loadLocked(dir)
	}
	m.publishLocked()
}

// Close stops the watcher.
func (m *Manager) Close() error {
	if m.done != nil {
		close(m.done)
	}
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}
