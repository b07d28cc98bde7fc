// Package blob abstracts where downloaded image payloads end up.
package blob

import "context"

// Sink writes binary payloads and returns the stored reference that is
// persisted on the Cat record. Implementations create their backing
// location lazily on first write.
type Sink interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}
