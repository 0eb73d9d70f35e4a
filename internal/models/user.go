package models

import "time"

// Supported identity providers
const (
	ProviderGoogle  = "google"
	ProviderTwitter = "twitter"
	ProviderGitHub  = "github"
)

// User represents an application user created from a provider profile.
// Only one of the provider id fields is set by this service; the others
// stay absent so the sparse unique indexes ignore them.
type User struct {
	ID        string    `bson:"_id,omitempty" json:"_id"`
	Username  string    `bson:"username" json:"username"`
	GoogleID  string    `bson:"googleId,omitempty" json:"googleId,omitempty"`
	TwitterID string    `bson:"twitterId,omitempty" json:"twitterId,omitempty"`
	GitHubID  string    `bson:"githubId,omitempty" json:"githubId,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// ProviderIdentity is a normalized provider profile: who authenticated, with which provider.
type ProviderIdentity struct {
	Provider   string
	ProviderID string
	Username   string
}

// ProviderField returns the document field holding ids for the given provider
// ("googleId", "twitterId", "githubId"), or "" for an unknown provider.
func ProviderField(provider string) string {
	switch provider {
	case ProviderGoogle, ProviderTwitter, ProviderGitHub:
		return provider + "Id"
	}
	return ""
}

// ProviderFields lists every provider id field, used for index creation.
func ProviderFields() []string {
	return []string{"googleId", "twitterId", "githubId"}
}

// SetProviderID sets the id field matching provider. Unknown providers are ignored.
func (u *User) SetProviderID(provider, id string) {
	switch provider {
	case ProviderGoogle:
		u.GoogleID = id
	case ProviderTwitter:
		u.TwitterID = id
	case ProviderGitHub:
		u.GitHubID = id
	}
}

// ProviderID returns the stored id for the given provider.
func (u *User) ProviderID(provider string) string {
	switch provider {
	case ProviderGoogle:
		return u.GoogleID
	case ProviderTwitter:
		return u.TwitterID
	case ProviderGitHub:
		return u.GitHubID
	}
	return ""
}
