package db

import (
	"time"

	"github.com/google/uuid"
)

// Session represents a browser session.
type Session struct {
	ID         string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastSeenAt time.Time
}

// Run is one settled recommendation request.
type Run struct {
	ID        uuid.UUID
	Scope     string
	Seq       uint64
	Status    string
	Reason    string
	CreatedAt time.Time
	Items     []RunItem
}

// RunItem is one recommendation within a Run.
type RunItem struct {
	TrackName  string
	ArtistName string
	Genre      string
	URI        *string // nullable - no catalog match
	AlbumCover string
}
