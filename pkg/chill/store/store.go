// Package store implements the hierarchical key-value tree backing the
// Chill app: /users/{uid}, /groups/{groupId}, /hangouts/{hangoutId}.
//
// All access is expressed as (path, value) pairs. Client mutations go
// through a Session, which runs every operation past the configured Gate
// before committing; the Store's own methods are privileged and bypass
// the gate (used by the reaction engine and system bootstrap).
//
// Every committed mutation produces change events on the watch feed.
// Multi-location updates are validated and applied as one unit: either
// every location passes the gate or nothing is written.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrPermissionDenied is the single caller-visible denial. The gate may
// wrap it with a reason for logs; clients only ever see the sentinel.
var ErrPermissionDenied = errors.New("permission denied")

// EventKind classifies a committed mutation at a path.
type EventKind int

const (
	Created EventKind = iota
	Updated
	Deleted
)

func (k EventKind) String() string {
	switch k {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	}
	return "unknown"
}

// Event describes a committed mutation: the value at Path changed from
// Before to After. Before and After are deep copies.
type Event struct {
	Kind   EventKind
	Path   Path
	Before any
	After  any
}

// Snapshot is a consistent read-only view of the tree, handed to the
// gate so predicates can check state outside the written path (group
// membership, admin sets).
type Snapshot interface {
	At(p Path) any
}

// Gate decides whether a caller may perform an operation. Implementations
// must be side-effect-free and deterministic given their inputs. A nil
// gate on the store allows everything.
type Gate interface {
	AllowRead(snap Snapshot, p Path, caller string) error
	AllowWrite(snap Snapshot, p Path, current, proposed any, caller string) error
}

// Node is the persistence row for one leaf of the tree.
type Node struct {
	Path  string `gorm:"primaryKey"`
	Value string `gorm:"not null"`
}

// Store holds the tree. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	root any
	db   *gorm.DB
	gate Gate

	watchMu  sync.Mutex
	watchers []chan Event
}

// New creates an in-memory store with no persistence.
func New(gate Gate) *Store {
	return &Store{gate: gate}
}

// Open creates a store persisted to the given database, migrating the
// node table and loading the existing tree.
func Open(db *gorm.DB, gate Gate) (*Store, error) {
	if err := db.AutoMigrate(&Node{}); err != nil {
		return nil, fmt.Errorf("migrate nodes: %w", err)
	}
	s := &Store{db: db, gate: gate}
	var rows []Node
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}
	for _, row := range rows {
		var v any
		if err := json.Unmarshal([]byte(row.Value), &v); err != nil {
			return nil, fmt.Errorf("decode node %q: %w", row.Path, err)
		}
		s.root = setAt(s.root, ParsePath(row.Path), Normalize(v))
	}
	return s, nil
}

// Watch returns a channel of committed mutations. Events are delivered
// in commit order. The channel is closed by Close.
func (s *Store) Watch() <-chan Event {
	ch := make(chan Event, 1024)
	s.watchMu.Lock()
	s.watchers = append(s.watchers, ch)
	s.watchMu.Unlock()
	return ch
}

// Close shuts down the watch feed.
func (s *Store) Close() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, ch := range s.watchers {
		close(ch)
	}
	s.watchers = nil
}

// Get returns a deep copy of the value at p, nil if absent. Privileged.
func (s *Store) Get(p Path) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Copy(ValueAt(s.root, p))
}

// Set replaces the value at p (nil deletes the subtree). Privileged.
func (s *Store) Set(p Path, v any) error {
	return s.apply("", false, []mutation{{p, v}})
}

// Update applies a multi-location merge anchored at p: each key is a
// relative path (it may contain slashes), each nil value a deletion.
// All locations commit atomically. Privileged.
func (s *Store) Update(p Path, values map[string]any) error {
	return s.apply("", false, mutations(p, values))
}

// Delete removes the subtree at p. Privileged.
func (s *Store) Delete(p Path) error {
	return s.Set(p, nil)
}

// Push writes v under a new server-generated child key of p and returns
// the key. Privileged.
func (s *Store) Push(p Path, v any) (string, error) {
	key := uuid.NewString()
	return key, s.Set(p.Child(key), v)
}

// Session returns a caller-scoped handle whose operations are checked by
// the store's gate.
func (s *Store) Session(uid string) *Session {
	return &Session{s: s, uid: uid}
}

// SystemSession returns a privileged handle with the same interface as a
// caller session but no gating.
func (s *Store) SystemSession() *Session {
	return &Session{s: s, system: true}
}

// Session is a caller-scoped view of the store. Every operation is run
// past the gate with the session's principal id, unless the session is
// the privileged system one.
type Session struct {
	s      *Store
	uid    string
	system bool
}

// UID returns the principal id of the session.
func (ss *Session) UID() string { return ss.uid }

// Get reads the value at p, or returns ErrPermissionDenied.
func (ss *Session) Get(p Path) (any, error) {
	ss.s.mu.RLock()
	defer ss.s.mu.RUnlock()
	if !ss.system && ss.s.gate != nil {
		if err := ss.s.gate.AllowRead(snapshot{ss.s.root}, p, ss.uid); err != nil {
			return nil, err
		}
	}
	return Copy(ValueAt(ss.s.root, p)), nil
}

// Set replaces the value at p subject to the gate.
func (ss *Session) Set(p Path, v any) error {
	return ss.s.apply(ss.uid, !ss.system, []mutation{{p, v}})
}

// Update applies a gated multi-location merge anchored at p. Every
// location must pass the gate or nothing is written.
func (ss *Session) Update(p Path, values map[string]any) error {
	return ss.s.apply(ss.uid, !ss.system, mutations(p, values))
}

// Delete removes the subtree at p subject to the gate.
func (ss *Session) Delete(p Path) error {
	return ss.Set(p, nil)
}

// Push writes v under a new child key of p subject to the gate and
// returns the key.
func (ss *Session) Push(p Path, v any) (string, error) {
	key := uuid.NewString()
	return key, ss.Set(p.Child(key), v)
}

type mutation struct {
	path  Path
	value any
}

func mutations(anchor Path, values map[string]any) []mutation {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	muts := make([]mutation, 0, len(keys))
	for _, k := range keys {
		muts = append(muts, mutation{anchor.Child(k), values[k]})
	}
	return muts
}

type snapshot struct {
	root any
}

func (s snapshot) At(p Path) any {
	return ValueAt(s.root, p)
}

// apply validates all mutations against one consistent snapshot, then
// commits them (persistence first, then memory) and emits change events.
func (s *Store) apply(caller string, gated bool, muts []mutation) error {
	s.mu.Lock()

	type change struct {
		path     Path
		before   any
		proposed any
	}
	changes := make([]change, 0, len(muts))
	for _, m := range muts {
		current := ValueAt(s.root, m.path)
		proposed := Normalize(m.value)
		if gated && s.gate != nil {
			if err := s.gate.AllowWrite(snapshot{s.root}, m.path, current, proposed, caller); err != nil {
				s.mu.Unlock()
				return err
			}
		}
		changes = append(changes, change{m.path, Copy(current), proposed})
	}

	if s.db != nil {
		err := s.db.Transaction(func(tx *gorm.DB) error {
			for _, c := range changes {
				if err := deleteNodes(tx, c.path); err != nil {
					return err
				}
				if err := insertNodes(tx, c.path, c.proposed); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("persist: %w", err)
		}
	}

	events := make([]Event, 0, len(changes))
	for _, c := range changes {
		s.root = setAt(s.root, c.path, Copy(c.proposed))
		if Equal(c.before, c.proposed) {
			continue
		}
		kind := Updated
		switch {
		case c.before == nil:
			kind = Created
		case c.proposed == nil:
			kind = Deleted
		}
		events = append(events, Event{kind, c.path, c.before, c.proposed})
	}
	s.mu.Unlock()

	if len(events) > 0 {
		s.watchMu.Lock()
		watchers := make([]chan Event, len(s.watchers))
		copy(watchers, s.watchers)
		s.watchMu.Unlock()
		for _, ev := range events {
			for _, ch := range watchers {
				ch <- ev
			}
		}
	}
	return nil
}

func deleteNodes(tx *gorm.DB, p Path) error {
	if p.IsRoot() {
		return tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Node{}).Error
	}
	return tx.Where("path = ? OR path LIKE ?", p.String(), p.String()+"/%").Delete(&Node{}).Error
}

func insertNodes(tx *gorm.DB, p Path, v any) error {
	if v == nil {
		return nil
	}
	if m, ok := v.(map[string]any); ok {
		for k, child := range m {
			if err := insertNodes(tx, p.Child(k), child); err != nil {
				return err
			}
		}
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return tx.Create(&Node{Path: p.String(), Value: string(raw)}).Error
}
