package radar

import (
	"errors"
	"iter"
	"sort"
	"sync"
)

// DefaultRadiusMeters is the search radius used when a client gives neither a radius nor its
// visible map region.
const DefaultRadiusMeters = 10000.0

// ErrChannelClosed is returned by a Channel whose connection has gone away.
var ErrChannelClosed = errors.New("radar: channel closed")

// Channel is the live connection a session's notifications are written to. Send must not
// block; it either queues the event or returns an error.
type Channel interface {
	Send(evt Event) error
}

// Session is the current search criteria of one live connection. Sessions are values: the
// registry replaces them on update and never mutates a Session it has handed out.
type Session struct {
	ConnectionID string
	Center       Point
	RadiusMeters float64
	Tags         TagSet
}

type registryEntry struct {
	session Session
	channel Channel
}

// SessionRegistry tracks live sessions keyed by connection id.
type SessionRegistry struct {
	mu            sync.RWMutex
	entries       map[string]*registryEntry
	buckets       *bucketIndex
	defaultRadius float64
}

// RegistryOption configures a SessionRegistry.
type RegistryOption func(*SessionRegistry)

// WithDefaultRadius sets the radius used when Register or Update get a non-positive one.
func WithDefaultRadius(meters float64) RegistryOption {
	return func(r *SessionRegistry) {
		if meters > 0 {
			r.defaultRadius = meters
		}
	}
}

// WithGeohashPrecision buckets sessions by the geohash cell of their center so matching only
// visits sessions near a new record. Zero disables bucketing.
func WithGeohashPrecision(chars uint) RegistryOption {
	return func(r *SessionRegistry) {
		if chars > 0 {
			r.buckets = newBucketIndex(chars)
		}
	}
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry(opts ...RegistryOption) *SessionRegistry {
	r := &SessionRegistry{
		entries:       make(map[string]*registryEntry),
		defaultRadius: DefaultRadiusMeters,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultRadius returns the radius applied when none is given.
func (r *SessionRegistry) DefaultRadius() float64 {
	return r.defaultRadius
}

// Register creates or replaces the session for id and binds it to ch. ch may be nil.
func (r *SessionRegistry) Register(id string, center Point, radiusMeters float64, tags []string, ch Channel) error {
	s, err := r.newSession(id, center, radiusMeters, tags)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = &registryEntry{session: s, channel: ch}
	if r.buckets != nil {
		r.buckets.place(s)
	}
	return nil
}

// Update replaces the center and tags of the session for id, and its radius when radiusMeters
// is positive. The bound channel is kept. If id is unknown it behaves as Register without a
// channel.
func (r *SessionRegistry) Update(id string, center Point, radiusMeters float64, tags []string) error {
	_, _, err := r.update(id, center, radiusMeters, tags, true)
	return err
}

// UpdateExisting is Update for a session that must already be registered. The check and the
// replacement happen under one lock, so an update racing Unregister never brings the session
// back. It reports false, with no error, when id is unknown.
func (r *SessionRegistry) UpdateExisting(id string, center Point, radiusMeters float64, tags []string) (Session, bool, error) {
	return r.update(id, center, radiusMeters, tags, false)
}

func (r *SessionRegistry) update(id string, center Point, radiusMeters float64, tags []string, create bool) (Session, bool, error) {
	if radiusMeters > 0 {
		if err := ValidateRadius(radiusMeters); err != nil {
			return Session{}, false, err
		}
	}
	s, err := r.newSession(id, center, radiusMeters, tags)
	if err != nil {
		return Session{}, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	switch {
	case !ok && !create:
		return Session{}, false, nil
	case !ok:
		e = &registryEntry{}
		r.entries[id] = e
	case radiusMeters <= 0:
		s.RadiusMeters = e.session.RadiusMeters
	}
	e.session = s
	if r.buckets != nil {
		r.buckets.place(s)
	}
	return s, true, nil
}

// Unregister removes the session for id. Unknown ids are ignored.
func (r *SessionRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return
	}
	delete(r.entries, id)
	if r.buckets != nil {
		r.buckets.remove(id)
	}
}

// Get returns the session for id.
func (r *SessionRegistry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Session{}, false
	}
	return e.session, true
}

// Channel returns the live channel bound to id, if the session exists and has one.
func (r *SessionRegistry) Channel(id string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok || e.channel == nil {
		return nil, false
	}
	return e.channel, true
}

// Len returns the number of active sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ListActive yields the active sessions ordered by connection id. Every call takes a fresh
// snapshot; the registry lock is only held while copying.
func (r *SessionRegistry) ListActive() iter.Seq[Session] {
	return func(yield func(Session) bool) {
		for _, s := range r.snapshot(nil) {
			if !yield(s) {
				return
			}
		}
	}
}

// Candidates yields the sessions that may match a record at p. Without bucketing that is every
// active session.
func (r *SessionRegistry) Candidates(p Point) iter.Seq[Session] {
	return func(yield func(Session) bool) {
		var filter map[string]struct{}
		if r.buckets != nil {
			r.mu.RLock()
			filter = r.buckets.candidates(p)
			r.mu.RUnlock()
		}
		for _, s := range r.snapshot(filter) {
			if !yield(s) {
				return
			}
		}
	}
}

func (r *SessionRegistry) snapshot(only map[string]struct{}) []Session {
	r.mu.RLock()
	out := make([]Session, 0, len(r.entries))
	for id, e := range r.entries {
		if only != nil {
			if _, ok := only[id]; !ok {
				continue
			}
		}
		out = append(out, e.session)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectionID < out[j].ConnectionID
	})
	return out
}

func (r *SessionRegistry) newSession(id string, center Point, radiusMeters float64, tags []string) (Session, error) {
	if id == "" {
		return Session{}, InvalidArgument("connection id is required")
	}
	if err := center.Validate(); err != nil {
		return Session{}, err
	}
	if radiusMeters <= 0 {
		radiusMeters = r.defaultRadius
	}
	if err := ValidateRadius(radiusMeters); err != nil {
		return Session{}, err
	}
	return Session{
		ConnectionID: id,
		Center:       center,
		RadiusMeters: radiusMeters,
		Tags:         NewTagSet(tags),
	}, nil
}
