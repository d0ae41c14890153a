package session

// User is the stored record of the signed-in account: the handful of
// fields the client actually renders, not the full server document.
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	ProfilePic string `json:"profilePic"`
}

// userRecord mirrors the server's user document shape on the auth
// endpoints. Only the fields the client consumes are decoded.
type userRecord struct {
	ID          string `json:"_id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	ProfilePic  string `json:"profilePic"`
	VerifyToken string `json:"verifyToken"`
	Role        struct {
		Name string `json:"name"`
	} `json:"role"`
}

func (r userRecord) toUser() User {
	name := r.FirstName
	if r.LastName != "" {
		if name != "" {
			name += " "
		}
		name += r.LastName
	}
	return User{
		ID:         r.ID,
		Name:       name,
		Email:      r.Email,
		Role:       r.Role.Name,
		ProfilePic: r.ProfilePic,
	}
}
