package auth

import (
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

const (
	DefaultAuthURL  = "https://auth.tesla.com/oauth2/v3/"
	DefaultClientID = "ownerapi"
)

// DefaultScopes are requested when the refresh token was issued.
var DefaultScopes = []string{"openid", "email", "offline_access"}

// Conf represents the configuration needed for authentication.
// RefreshToken is the long-lived seed exchanged for access tokens.
type Conf struct {
	ClientID     string   `json:"client_id"`
	AuthURL      string   `json:"auth_url"`
	RefreshToken string   `json:"refresh_token"`
	Scopes       []string `json:"scopes"`
}

// SetDefaults applies the owner API defaults.
func (c *Conf) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.AuthURL == "" {
		c.AuthURL = DefaultAuthURL
	}
	if len(c.Scopes) == 0 {
		c.Scopes = append([]string(nil), DefaultScopes...)
	}
}

// Validate checks mandatory fields.
func (c Conf) Validate() error {
	if c.RefreshToken == "" {
		return fmt.Errorf("refresh_token is required")
	}
	if c.AuthURL == "" {
		return fmt.Errorf("auth_url is required")
	}
	return nil
}

func (c *Conf) tokenURL() string {
	base := c.AuthURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + "token"
}

func (c *Conf) toOauth2Config() oauth2.Config {
	return oauth2.Config{
		ClientID: c.ClientID,
		Scopes:   c.Scopes,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.tokenURL(),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}
