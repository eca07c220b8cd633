// Package storage persists fitted predictor artifacts between the trainer
// and the API server.
package storage

import (
	"context"
	"fmt"
	"time"
)

// Artifact is one encoded predictor. Data is opaque to the store; its
// format is owned by models.Marshal.
type Artifact struct {
	ID        string    `json:"id"`
	Variant   string    `json:"variant"`
	CreatedAt time.Time `json:"createdAt"`
	Data      []byte    `json:"data"`
}

// Store keeps artifacts by id and remembers the most recent artifact put for
// each variant.
type Store interface {
	Put(ctx context.Context, a Artifact) error
	Get(ctx context.Context, id string) (Artifact, bool, error)
	Latest(ctx context.Context, variant string) (Artifact, bool, error)
	Delete(ctx context.Context, id string) error
}

// validName restricts ids and variant names to characters safe in a key.
func validName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s required", kind)
	}
	for _, c := range name {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_') {
			return fmt.Errorf("invalid %s %q: only alphanumeric, hyphens, and underscores allowed", kind, name)
		}
	}
	return nil
}
