package port

import "context"

// Store defines the minimal contract for the client's persisted key-value
// state (auth token, serialized user record, preferences). Implementations
// must be concurrency-safe.
//
// Note: Values are stored as strings to keep the port generic and avoid
// coupling to serialization concerns. Adapters may add helper methods in
// their own packages if needed, but this is the stable port exposed to the
// rest of the app.
type Store interface {
	// Get fetches the value for key. A missing key is reported as
	// ("", ErrMiss); a non-nil error other than ErrMiss means a transport
	// or backend failure.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key, replacing any previous value.
	Set(ctx context.Context, key string, value string) error

	// Del removes one or more keys and returns the number of keys removed.
	Del(ctx context.Context, keys ...string) (int64, error)

	// Close releases any resources held by the store.
	Close() error
}

// ErrMiss signals an absent key in a typed way, so callers can
// differentiate misses from backend errors.
var ErrMiss = errMiss{}

type errMiss struct{}

func (e errMiss) Error() string { return "storage: miss" }
