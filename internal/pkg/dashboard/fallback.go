package dashboard

import "time"

const day = 24 * time.Hour

// FallbackItems returns the static sample list shown when the dashboard
// endpoint is missing or unreachable.
func FallbackItems() []Item {
	now := time.Now()
	return []Item{
		{
			ID:          1,
			Title:       "System Status",
			Description: "Overall system health check",
			Status:      StatusActive,
			LastUpdated: now,
		},
		{
			ID:          2,
			Title:       "Database Connection",
			Description: "Database connectivity status",
			Status:      StatusActive,
			LastUpdated: now,
		},
		{
			ID:          3,
			Title:       "API Services",
			Description: "External API service status",
			Status:      StatusWarning,
			LastUpdated: now.Add(-1 * day),
		},
		{
			ID:          4,
			Title:       "Storage Usage",
			Description: "Server storage capacity",
			Status:      StatusError,
			LastUpdated: now.Add(-2 * day),
		},
		{
			ID:          5,
			Title:       "User Activity",
			Description: "Recent user login activity",
			Status:      StatusInactive,
			LastUpdated: now.Add(-3 * day),
		},
	}
}
