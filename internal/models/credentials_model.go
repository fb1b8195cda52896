package models

import "time"

// Credentials is closed over the three platform shapes below; the unexported
// method keeps other packages from adding a fourth.
type Credentials interface {
	Platform() Platform
	isCredentials()
}

type FacebookCredentials struct {
	PageID          string
	PageAccessToken string
}

type InstagramCredentials struct {
	AccountID   string
	AccessToken string
}

type XCredentials struct {
	APIKey       string
	APISecret    string
	AccessToken  string
	AccessSecret string
}

func (FacebookCredentials) Platform() Platform  { return PlatformFacebook }
func (InstagramCredentials) Platform() Platform { return PlatformInstagram }
func (XCredentials) Platform() Platform         { return PlatformX }

func (FacebookCredentials) isCredentials()  {}
func (InstagramCredentials) isCredentials() {}
func (XCredentials) isCredentials()         {}

func (c XCredentials) Complete() bool {
	return c.APIKey != "" && c.APISecret != "" && c.AccessToken != "" && c.AccessSecret != ""
}

// PlatformAccount is the stored row behind a Credentials value. Token columns may be
// AES-GCM sealed.
type PlatformAccount struct {
	ID             int64      `db:"id" json:"id"`
	Platform       Platform   `db:"platform" json:"platform"`
	AccountID      string     `db:"account_id" json:"account_id"`
	AccessToken    string     `db:"access_token" json:"-"`
	APIKey         string     `db:"api_key" json:"-"`
	APISecret      string     `db:"api_secret" json:"-"`
	AccessSecret   string     `db:"access_secret" json:"-"`
	TokenExpiresAt *time.Time `db:"token_expires_at" json:"token_expires_at,omitempty"`
	Active         bool       `db:"active" json:"active"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
