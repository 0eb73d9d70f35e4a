package sessions

import "time"

// Session is a server-side session record. UserID is empty until a provider
// callback succeeds; Handshake holds per-provider pending OAuth secrets
// (state for OAuth2, request-token secret for OAuth1).
type Session struct {
	ID        string            `bson:"_id" json:"id"`
	UserID    string            `bson:"userId,omitempty" json:"userId,omitempty"`
	Handshake map[string]string `bson:"handshake,omitempty" json:"handshake,omitempty"`
	CreatedAt time.Time         `bson:"createdAt" json:"createdAt"`
	ExpiresAt time.Time         `bson:"expiresAt" json:"expiresAt"`
}

// Authenticated reports whether the session is bound to a user.
func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != ""
}
