package sessions

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore/runtime/pkg/models"
)

// Store is the session persistence contract of spec.md §4.7, grounded
// on internal/sessions/store.go's Store interface shape (Create/Get/
// Update/Delete/GetByKey/GetOrCreate/List/AppendMessage/GetHistory),
// backed here by a file implementation rather than the teacher's SQL
// backends, since spec.md specifies an append-only on-disk log.
type Store interface {
	Create(session *models.Session) error
	Get(id string) (*models.Session, error)
	Update(session *models.Session) error
	Delete(id string) error
	GetByKey(key string) (*models.Session, error)
	GetOrCreate(key string, provider, model string) (*models.Session, error)
	List(opts ListOptions) ([]*models.Session, error)
	AppendMessage(sessionID string, msg models.Message) error
	MutateLastAssistant(sessionID string, msg models.Message) error
	Messages(sessionID string) []models.Message
	Stats() Stats
}

// ListOptions filters/sorts the List call, grounded on
// internal/sessions/store.go's ListOptions.
type ListOptions struct {
	UserID string
	Since  time.Time
	Limit  int
}

// Stats reports store-wide health counters, including the event-log
// parse-failure counter mandated by spec.md §9's open issue (decision
// recorded in SPEC_FULL.md §6: exposed via Stats, not silently dropped).
type Stats struct {
	Sessions      int
	ParseFailures int64
}

// logEntry is one line of a session's append-only event log.
type logEntry struct {
	Type      string          `json:"type"`
	Message   *models.Message `json:"message,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// metaDoc is the on-disk JSON document for one session: metadata plus
// the current message list, per spec.md §4.7's "two file classes"
// layout.
type metaDoc struct {
	Session  models.Session   `json:"session"`
	Messages []models.Message `json:"messages"`
}

// FileStore is the file-backed Store implementation: one JSON metadata
// document and one append-only .jsonl event log per session, each
// write serialized by a dedicated per-session mutex (internal/sessions
// .Locker), so writes to different sessions never block each other
// (spec.md §4.7, testable property 4).
type FileStore struct {
	root   string
	locker *Locker
	cache  *lruCache

	mu       sync.RWMutex
	byKey    map[string]string
	byUser   map[string][]string

	parseFailures int64
}

// NewFileStore builds a FileStore rooted at dir, creating the directory
// if needed.
func NewFileStore(dir string, cacheCapacity int) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	fs := &FileStore{
		root:   dir,
		locker: NewLocker(),
		cache:  newLRUCache(cacheCapacity),
		byKey:  map[string]string{},
		byUser: map[string][]string{},
	}
	return fs, nil
}

func (s *FileStore) metaPath(id string) string { return filepath.Join(s.root, id+".json") }
func (s *FileStore) logPath(id string) string  { return filepath.Join(s.root, id+".jsonl") }

// Create persists a brand new session's metadata document.
func (s *FileStore) Create(session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	if session.State == "" {
		session.State = models.SessionActive
	}

	s.locker.Lock(session.ID)
	defer s.locker.Unlock(session.ID)

	doc := metaDoc{Session: *session}
	if err := s.writeMetaLocked(session.ID, doc); err != nil {
		return err
	}

	s.mu.Lock()
	if session.Key != "" {
		s.byKey[session.Key] = session.ID
	}
	if uid, ok := session.Metadata["user_id"]; ok && uid != "" {
		s.byUser[uid] = append(s.byUser[uid], session.ID)
	}
	s.mu.Unlock()

	s.cache.put(session.ID, cloneSession(session))
	return nil
}

// Get loads a session's metadata document, consulting the cache first.
func (s *FileStore) Get(id string) (*models.Session, error) {
	if cached, ok := s.cache.get(id); ok {
		return cloneSession(cached), nil
	}
	doc, err := s.readMeta(id)
	if err != nil {
		return nil, err
	}
	s.cache.put(id, cloneSession(&doc.Session))
	return cloneSession(&doc.Session), nil
}

// Update overwrites a session's metadata (not its message list).
func (s *FileStore) Update(session *models.Session) error {
	s.locker.Lock(session.ID)
	defer s.locker.Unlock(session.ID)

	doc, err := s.readMetaLocked(session.ID)
	if err != nil {
		return err
	}
	created := doc.Session.CreatedAt
	doc.Session = *session
	doc.Session.CreatedAt = created
	doc.Session.UpdatedAt = time.Now()
	if err := s.writeMetaLocked(session.ID, doc); err != nil {
		return err
	}
	s.cache.put(session.ID, cloneSession(&doc.Session))
	return nil
}

// Delete removes both on-disk files for a session and its index entries.
func (s *FileStore) Delete(id string) error {
	s.locker.Lock(id)
	defer s.locker.Unlock(id)

	doc, err := s.readMetaLocked(id)
	if err == nil {
		s.mu.Lock()
		if doc.Session.Key != "" {
			delete(s.byKey, doc.Session.Key)
		}
		if uid := doc.Session.Metadata["user_id"]; uid != "" {
			ids := s.byUser[uid]
			for i, sid := range ids {
				if sid == id {
					s.byUser[uid] = append(ids[:i], ids[i+1:]...)
					break
				}
			}
		}
		s.mu.Unlock()
	}

	_ = os.Remove(s.metaPath(id))
	_ = os.Remove(s.logPath(id))
	s.cache.remove(id)
	return nil
}

// GetByKey resolves a session by its external key (models.SessionKey).
func (s *FileStore) GetByKey(key string) (*models.Session, error) {
	s.mu.RLock()
	id, ok := s.byKey[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session not found for key %q", key)
	}
	return s.Get(id)
}

// GetOrCreate resolves an existing session by key or creates a new one.
func (s *FileStore) GetOrCreate(key, provider, model string) (*models.Session, error) {
	if sess, err := s.GetByKey(key); err == nil {
		return sess, nil
	}
	sess := &models.Session{Key: key, Provider: provider, Model: model}
	if err := s.Create(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// List returns sessions matching opts, newest last_activity first.
func (s *FileStore) List(opts ListOptions) ([]*models.Session, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var out []*models.Session
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := e.Name()[:len(e.Name())-len(".json")]
		sess, err := s.Get(id)
		if err != nil {
			continue
		}
		if opts.UserID != "" && sess.Metadata["user_id"] != opts.UserID {
			continue
		}
		if !opts.Since.IsZero() && sess.UpdatedAt.Before(opts.Since) {
			continue
		}
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// AppendMessage appends one message to the session's event log and
// updates the cached message list in its metadata document, per
// spec.md §4.7's write discipline: acquire the session's mutex, append
// to the log, flush, release.
func (s *FileStore) AppendMessage(sessionID string, msg models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	s.locker.Lock(sessionID)
	defer s.locker.Unlock(sessionID)

	if err := s.appendLogLocked(sessionID, logEntry{Type: "message", Message: &msg, Timestamp: msg.CreatedAt}); err != nil {
		return err
	}

	doc, err := s.readMetaLocked(sessionID)
	if err != nil {
		return err
	}
	doc.Messages = append(doc.Messages, msg)
	doc.Session.UpdatedAt = time.Now()
	if err := s.writeMetaLocked(sessionID, doc); err != nil {
		return err
	}
	s.cache.put(sessionID, cloneSession(&doc.Session))
	return nil
}

// MutateLastAssistant replaces the trailing assistant message of the
// metadata document in place, per spec.md §3 invariant (b), or appends
// msg there when the last message is not an assistant one. It does not
// write to the event log.
func (s *FileStore) MutateLastAssistant(sessionID string, msg models.Message) error {
	s.locker.Lock(sessionID)
	defer s.locker.Unlock(sessionID)

	doc, err := s.readMetaLocked(sessionID)
	if err != nil {
		return err
	}
	if len(doc.Messages) == 0 || doc.Messages[len(doc.Messages)-1].Role != models.RoleAssistant {
		doc.Messages = append(doc.Messages, msg)
	} else {
		doc.Messages[len(doc.Messages)-1] = msg
	}
	if err := s.writeMetaLocked(sessionID, doc); err != nil {
		return err
	}
	s.cache.put(sessionID, cloneSession(&doc.Session))
	return nil
}

// Messages returns the session's current message list from its cached
// metadata document (not a full log replay).
func (s *FileStore) Messages(sessionID string) []models.Message {
	doc, err := s.readMeta(sessionID)
	if err != nil {
		return nil
	}
	return doc.Messages
}

// ReplayLog reads the full event log for a session, counting and
// skipping any line that fails to parse (spec.md §9 decision: counter
// exposed via Stats, not silently dropped).
func (s *FileStore) ReplayLog(sessionID string) ([]logEntry, error) {
	f, err := os.Open(s.logPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []logEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var entry logEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			atomic.AddInt64(&s.parseFailures, 1)
			continue
		}
		out = append(out, entry)
	}
	return out, scanner.Err()
}

// Stats reports the store's running counters.
func (s *FileStore) Stats() Stats {
	entries, _ := os.ReadDir(s.root)
	count := 0
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			count++
		}
	}
	return Stats{
		Sessions:      count,
		ParseFailures: atomic.LoadInt64(&s.parseFailures),
	}
}

func (s *FileStore) appendLogLocked(sessionID string, entry logEntry) error {
	f, err := os.OpenFile(s.logPath(sessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

func (s *FileStore) readMeta(id string) (metaDoc, error) {
	s.locker.Lock(id)
	defer s.locker.Unlock(id)
	return s.readMetaLocked(id)
}

func (s *FileStore) readMetaLocked(id string) (metaDoc, error) {
	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		return metaDoc{}, fmt.Errorf("session %q not found: %w", id, err)
	}
	var doc metaDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return metaDoc{}, fmt.Errorf("corrupt session metadata %q: %w", id, err)
	}
	return doc, nil
}

func (s *FileStore) writeMetaLocked(id string, doc metaDoc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.metaPath(id) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.metaPath(id))
}

func cloneSession(s *models.Session) *models.Session {
	clone := *s
	if s.Metadata != nil {
		clone.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}
