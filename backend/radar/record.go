package radar

import (
	"context"
	"time"
)

// Profile is display metadata carried with a record. It plays no part in matching.
type Profile struct {
	GithubUsername string `json:"github_username"`
	Name           string `json:"name"`
	AvatarURL      string `json:"avatar_url"`
	Bio            string `json:"bio"`
}

// Record is a registered developer.
type Record struct {
	ID string `json:"_id"`
	Profile
	Techs     []string  `json:"techs"`
	Location  Point     `json:"location"`
	CreatedAt time.Time `json:"-"`
}

// Event is a server to client message on a live channel.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Event types sent to live clients.
const (
	EventNewDevs = "newDevs"
	EventInfo    = "info"
	EventError   = "error"
)

// Store persists records. MemoryIndex and the Postgres store implement it.
type Store interface {
	Create(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, id string) (Record, error)
	GetByIDs(ctx context.Context, ids []string) ([]Record, error)
	List(ctx context.Context) ([]Record, error)
}
