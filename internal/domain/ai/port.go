package ai

import "context"

// Image is the encoded input payload sent to the vision model.
type Image struct {
	Data []byte
	MIME string
}

// Client port for the external vision service. Invoke returns the raw text
// reply; repair and schema validation happen upstream.
type Client interface {
	Invoke(ctx context.Context, img Image, category string) (string, error)
}
