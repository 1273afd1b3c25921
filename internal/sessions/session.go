package sessions

import "time"

// Session represents a persistent refresh session. It also carries the
// Google OAuth tokens obtained at login, which the classroom API calls are
// made with; they never leave the server. SID is the opaque handle embedded
// in access tokens: it resolves the session but cannot refresh it, so a
// leaked access token never exposes the refresh token.
type Session struct {
	ID                 string    `bson:"_id,omitempty" json:"id"`
	SID                string    `bson:"sid" json:"sid"`
	RefreshToken       string    `bson:"refreshToken" json:"refreshToken"`
	Sub                string    `bson:"sub" json:"sub"`
	Name               string    `bson:"name,omitempty" json:"name,omitempty"`
	GoogleAccessToken  string    `bson:"googleAccessToken,omitempty" json:"googleAccessToken,omitempty"`
	GoogleRefreshToken string    `bson:"googleRefreshToken,omitempty" json:"googleRefreshToken,omitempty"`
	ExpiresAt          time.Time `bson:"expiresAt" json:"expiresAt"`
	CreatedAt          time.Time `bson:"createdAt" json:"createdAt"`
}
