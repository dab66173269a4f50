// Package engine reacts to committed store mutations with privileged
// follow-up writes and push notification fan-out. Handlers are keyed by
// (path pattern, mutation kind) and invoked with at-least-once
// semantics: a handler that returns an error is retried, so every
// handler recomputes its intended writes from a fresh read instead of
// assuming earlier attempts did not land.
package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/AlanDaniels101/chill/pkg/chill/metrics"
	"github.com/AlanDaniels101/chill/pkg/chill/push"
	"github.com/AlanDaniels101/chill/pkg/chill/store"
)

// TriggerEvent is one concrete firing of a registered trigger.
type TriggerEvent struct {
	Kind   store.EventKind
	Path   store.Path
	Params map[string]string // pattern captures, e.g. {"groupId": "g1"}
	Before any
	After  any
}

// HandlerFunc reacts to a trigger. Returning an error requests a retry
// of the whole invocation; malformed input should be logged and
// swallowed (retrying cannot fix it).
type HandlerFunc func(ctx context.Context, ev TriggerEvent) error

type registration struct {
	name    string
	pattern store.Path
	kind    store.EventKind
	handler HandlerFunc
}

// Engine subscribes the handler registry to a store's change feed. Its
// store handle is privileged: consistency maintenance bypasses the
// per-user rules.
type Engine struct {
	store  *store.Store
	sender push.Sender
	regs   []registration

	maxAttempts int
	backoff     time.Duration

	events  <-chan store.Event
	pending atomic.Int64
}

// New builds an engine with the full Chill handler set registered.
func New(st *store.Store, sender push.Sender) *Engine {
	e := &Engine{
		store:       st,
		sender:      sender,
		maxAttempts: 3,
		backoff:     100 * time.Millisecond,
	}
	e.register("notify-group-subscribers", "hangouts/{hangoutId}", store.Created, e.hangoutCreated)
	e.register("notify-poll-closed", "hangouts/{hangoutId}/datetimePollInProgress", store.Deleted, e.pollClosed)
	e.register("membership-created", "groups/{groupId}/members/{userId}", store.Created, e.membershipCreated)
	e.register("membership-deleted", "groups/{groupId}/members/{userId}", store.Deleted, e.membershipDeleted)
	e.register("user-deleted", "users/{userId}", store.Deleted, e.userDeleted)
	e.register("group-deleted", "groups/{groupId}", store.Deleted, e.groupDeleted)
	return e
}

func (e *Engine) register(name, pattern string, kind store.EventKind, h HandlerFunc) {
	e.regs = append(e.regs, registration{
		name:    name,
		pattern: store.ParsePath(pattern),
		kind:    kind,
		handler: h,
	})
}

// Start subscribes to the store feed and begins dispatching. Dispatch
// stops when ctx is cancelled or the store is closed.
func (e *Engine) Start(ctx context.Context) {
	e.events = e.store.Watch()
	go e.run(ctx)
}

func (e *Engine) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.events:
			if !ok {
				return
			}
			e.pending.Add(1)
			e.dispatch(ctx, ev)
			e.pending.Add(-1)
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, ev store.Event) {
	for _, reg := range e.regs {
		for _, trig := range expand(reg, ev) {
			e.pending.Add(1)
			go func(reg registration, trig TriggerEvent) {
				defer e.pending.Add(-1)
				e.invoke(ctx, reg, trig)
			}(reg, trig)
		}
	}
}

// invoke runs one handler invocation with retries and backoff. The
// batched writes handlers produce are recomputed from current store
// state on each attempt, which is what makes the retry safe.
func (e *Engine) invoke(ctx context.Context, reg registration, trig TriggerEvent) {
	for attempt := 1; ; attempt++ {
		err := reg.handler(ctx, trig)
		if err == nil {
			metrics.HandlerRuns.WithLabelValues(reg.name, "ok").Inc()
			return
		}
		if attempt >= e.maxAttempts {
			metrics.HandlerRuns.WithLabelValues(reg.name, "failed").Inc()
			slog.Error("handler failed, giving up",
				"trigger", reg.name, "path", trig.Path.String(), "attempts", attempt, "error", err)
			return
		}
		metrics.HandlerRuns.WithLabelValues(reg.name, "retry").Inc()
		slog.Warn("handler failed, retrying",
			"trigger", reg.name, "path", trig.Path.String(), "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(e.backoff * time.Duration(attempt)):
		}
	}
}

// Quiesce waits until the feed is drained and no handler invocations
// are in flight, or the timeout elapses. Used for shutdown and tests.
func (e *Engine) Quiesce(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	stable := 0
	for time.Now().Before(deadline) {
		if len(e.events) == 0 && e.pending.Load() == 0 {
			stable++
			if stable >= 3 {
				return true
			}
		} else {
			stable = 0
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

// expand matches a store event against a registration, descending into
// the changed subtree when the pattern is deeper than the mutation
// path. Deleting a whole group, for example, produces one deleted
// trigger per member entry for the membership pattern.
func expand(reg registration, ev store.Event) []TriggerEvent {
	pat := reg.pattern
	if len(pat) < len(ev.Path) {
		return nil
	}
	params := make(map[string]string)
	for i, seg := range ev.Path {
		if !segMatch(pat[i], seg, params) {
			return nil
		}
	}

	var out []TriggerEvent
	descend(ev.Path, pat[len(ev.Path):], params, ev.Before, ev.After, &out)

	matched := out[:0]
	for _, trig := range out {
		if store.Equal(trig.Before, trig.After) {
			continue
		}
		switch {
		case trig.Before == nil:
			trig.Kind = store.Created
		case trig.After == nil:
			trig.Kind = store.Deleted
		default:
			trig.Kind = store.Updated
		}
		if trig.Kind == reg.kind {
			matched = append(matched, trig)
		}
	}
	return matched
}

func descend(prefix store.Path, rest store.Path, params map[string]string, before, after any, out *[]TriggerEvent) {
	if len(rest) == 0 {
		p := make(map[string]string, len(params))
		for k, v := range params {
			p[k] = v
		}
		path := make(store.Path, len(prefix))
		copy(path, prefix)
		*out = append(*out, TriggerEvent{Path: path, Params: p, Before: before, After: after})
		return
	}
	seg := rest[0]
	if name, capture := captureName(seg); capture {
		for _, key := range childKeys(before, after) {
			params[name] = key
			descend(prefix.Child(key), rest[1:], params, child(before, key), child(after, key), out)
		}
		delete(params, name)
		return
	}
	descend(prefix.Child(seg), rest[1:], params, child(before, seg), child(after, seg), out)
}

func segMatch(patSeg, seg string, params map[string]string) bool {
	if name, capture := captureName(patSeg); capture {
		params[name] = seg
		return true
	}
	return patSeg == seg
}

func captureName(seg string) (string, bool) {
	if len(seg) >= 2 && seg[0] == '{' && seg[len(seg)-1] == '}' {
		return seg[1 : len(seg)-1], true
	}
	return "", false
}

func child(v any, key string) any {
	m, _ := v.(map[string]any)
	return m[key]
}

func childKeys(before, after any) []string {
	seen := make(map[string]bool)
	for _, v := range []any{before, after} {
		if m, ok := v.(map[string]any); ok {
			for k := range m {
				seen[k] = true
			}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
