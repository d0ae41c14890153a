package chat

import "strings"

// User is one chat counterpart as the client renders it: identity plus
// the per-conversation unread counter and presence flag.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Organization string `json:"organization,omitempty"`
	IsVerified   bool   `json:"isVerified"`
	UnreadCount  int    `json:"unreadCount"`
	Initials     string `json:"initials"`
	IsOnline     bool   `json:"isOnline"`
}

// Normalize fills derived fields; today that is just the initials.
func (u User) Normalize() User {
	if u.Initials == "" {
		u.Initials = InitialsOf(u.Name)
	}
	return u
}

// InitialsOf derives display initials from a name: first letter of the
// first two words, uppercased.
func InitialsOf(name string) string {
	var initials []rune
	for _, word := range strings.Fields(name) {
		runes := []rune(strings.ToUpper(word))
		initials = append(initials, runes[0])
		if len(initials) == 2 {
			break
		}
	}
	return string(initials)
}
