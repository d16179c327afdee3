package appraisal

import "context"

// Repository port (interface for persistence)
type Repository interface {
	Save(ctx context.Context, a *Appraisal) error
	// Get returns ErrNotFound when the id is unknown.
	Get(ctx context.Context, id AppraisalID) (*Appraisal, error)
	// Bump increments a named operational counter, best effort.
	Bump(ctx context.Context, name string) error
	Count(ctx context.Context, name string) (int64, error)
}

// ImageStore port (interface for input payload blobs)
type ImageStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Fetch(ctx context.Context, key string) ([]byte, error)
}
