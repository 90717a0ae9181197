package loginsession

import "time"

// Session is the server-side record of an authenticated portal
// session, referenced by the session cookie. The token pair inside it
// belongs to the external identity provider; the portal only stores
// and re-presents it for introspection.
type Session struct {
	SubjectID string
	Email     string

	AccessToken  string
	RefreshToken string

	ExpiresAt time.Time
	CreatedAt time.Time
}

type Repo interface {
	Upsert(sessionID string, session Session) error
	Get(sessionID string) (Session, error)
	Delete(sessionID string) error
}
