package ion

import "time"

// Profile is the authenticated account's identity and storage usage.
type Profile struct {
	ID            int64
	Username      string
	Email         string
	EmailVerified bool
	AvatarURL     string
	StorageUsed   int64
	StorageTotal  int64
}

// Asset is one hosted asset. Status is the processing state reported by the
// service ("COMPLETE", "IN_PROGRESS", "ERROR", ...).
type Asset struct {
	ID              int64
	Name            string
	Description     string
	Attribution     string
	Type            string
	Bytes           int64
	Status          string
	PercentComplete int
	DateAdded       time.Time
}

// Assets is one page of the account's asset list.
type Assets struct {
	Items    []Asset
	NextPage string
}

// Token is an API access token. Value is a secret; NEVER log it.
type Token struct {
	ID           string
	Name         string
	Value        string
	Scopes       []string
	AssetIDs     []int64
	IsDefault    bool
	DateAdded    time.Time
	DateModified time.Time
	DateLastUsed time.Time
}

// IsZero reports whether t is the empty token returned before anything loaded.
func (t Token) IsZero() bool {
	return t.ID == "" && t.Value == ""
}
