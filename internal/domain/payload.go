package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Payload is an immutable script version. Edits are new versions.
type Payload struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Version        string    `json:"version"`
	Description    string    `json:"description"`
	Size           int64     `json:"size"`
	ChecksumSHA256 string    `json:"checksum_sha256"`
	StoragePath    string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

type PayloadFilter struct {
	Name      *string
	Page      int
	PerPage   int
	SortBy    string
	SortOrder string
}

type PayloadRepository interface {
	Create(ctx context.Context, payload *Payload) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payload, error)
	List(ctx context.Context, filter PayloadFilter) ([]*Payload, int, error)
	// Delete fails with ErrPayloadInUse when any deployment references the payload.
	Delete(ctx context.Context, id uuid.UUID) error
}
