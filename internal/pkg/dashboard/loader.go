package dashboard

import (
	"context"
	"log/slog"
	"time"

	"go-vitalchat/internal/infrastructure/httpapi"
)

// Status of a dashboard item.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusWarning  Status = "warning"
	StatusError    Status = "error"
)

// Item is one status widget on the dashboard.
type Item struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	LastUpdated time.Time `json:"lastUpdated"`
}

const maxRetries = 2

// Loader fetches the dashboard item list. Transport failures are retried
// twice; a missing endpoint (404) or exhausted retries degrade to the
// static fallback list instead of failing the view. Anything else is a
// real error and surfaces as one.
type Loader struct {
	http *httpapi.Client
	log  *slog.Logger
}

func NewLoader(c *httpapi.Client, log *slog.Logger) *Loader {
	return &Loader{http: c, log: log}
}

// Load returns the dashboard items.
func (l *Loader) Load(ctx context.Context) ([]Item, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		var items []Item
		err := l.http.Get(ctx, "/dashboard", nil, &items)
		if err == nil {
			return items, nil
		}
		lastErr = err

		if httpapi.IsNotFound(err) {
			l.log.Warn("dashboard endpoint missing, using fallback data")
			return FallbackItems(), nil
		}
		if !httpapi.IsNetwork(err) {
			return nil, err
		}
		l.log.Warn("dashboard fetch failed",
			slog.Int("attempt", attempt+1),
			slog.Any("error", err),
		)
	}

	l.log.Warn("dashboard unreachable, using fallback data", slog.Any("error", lastErr))
	return FallbackItems(), nil
}
