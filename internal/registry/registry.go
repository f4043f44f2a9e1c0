package registry

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"evcentral/internal/ocpp"
)

// Session is a live charger connection as seen by the rest of the core.
type Session interface {
	ChargerID() string
	Call(ctx context.Context, action string, payload interface{}, timeout time.Duration) (json.RawMessage, error)
	Close(reason error)
}

// Gauge tracks the number of live sessions. metrics.Collectors implements it.
type Gauge interface {
	SetSessions(n int)
}

// Registry maps charger identities to their single live session. Every
// operation on one identity is linearizable; identities never share a lock.
type Registry struct {
	sessions sync.Map
	gauge    Gauge
	logger   *zap.Logger

	mu    sync.Mutex
	count int
}

// New builds an empty registry. gauge may be nil.
func New(gauge Gauge, logger *zap.Logger) *Registry {
	return &Registry{gauge: gauge, logger: logger}
}

// Register installs session for its charger, tearing down any session it replaces.
func (r *Registry) Register(session Session) {
	id := session.ChargerID()
	previous, loaded := r.sessions.Swap(id, session)
	if !loaded {
		r.adjust(1)
		return
	}

	old := previous.(Session)
	if old == session {
		return
	}
	r.logger.Info("charger session superseded", zap.String("charger_id", id))
	old.Close(ocpp.ErrSuperseded)
}

// Lookup returns the live session for chargerID.
func (r *Registry) Lookup(chargerID string) (Session, bool) {
	value, ok := r.sessions.Load(chargerID)
	if !ok {
		return nil, false
	}
	return value.(Session), true
}

// Unregister removes the entry for chargerID only while it still points at
// session. It reports whether the entry was removed.
func (r *Registry) Unregister(chargerID string, session Session) bool {
	if !r.sessions.CompareAndDelete(chargerID, session) {
		return false
	}
	r.adjust(-1)
	return true
}

// IDs lists the identities with a live session, sorted.
func (r *Registry) IDs() []string {
	var ids []string
	r.sessions.Range(func(key, _ any) bool {
		ids = append(ids, key.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}

// CloseAll tears down every session with reason. Used on shutdown. Sessions
// are closed before removal so their own close hooks still see them registered.
func (r *Registry) CloseAll(reason error) {
	r.sessions.Range(func(key, value any) bool {
		session := value.(Session)
		session.Close(reason)
		r.Unregister(key.(string), session)
		return true
	})
}

func (r *Registry) adjust(delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count += delta
	if r.gauge != nil {
		r.gauge.SetSessions(r.count)
	}
}
