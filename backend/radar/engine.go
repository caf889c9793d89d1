package radar

import "sort"

// MatchEngine finds the live sessions a newly created record should be pushed to.
type MatchEngine struct {
	registry *SessionRegistry
}

// NewMatchEngine creates an engine over registry.
func NewMatchEngine(registry *SessionRegistry) *MatchEngine {
	return &MatchEngine{registry: registry}
}

// OnRecordCreated returns the connection ids of every session rec falls inside, sorted. Sessions
// registered or updated while the pass runs may or may not be seen.
func (e *MatchEngine) OnRecordCreated(rec Record) []string {
	ids := []string{}
	for s := range e.registry.Candidates(rec.Location) {
		if Matches(s, rec) {
			ids = append(ids, s.ConnectionID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Matches reports whether rec passes the tag filter of s and lies within its radius, boundary
// included.
func Matches(s Session, rec Record) bool {
	if !s.Tags.Accepts(rec.Techs) {
		return false
	}
	return Distance(s.Center, rec.Location) <= s.RadiusMeters
}
