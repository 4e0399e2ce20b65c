package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"golang.org/x/oauth2"

	"github.com/kilianp07/teslamqtt/core/model"
	"github.com/kilianp07/teslamqtt/core/tesla"
	"github.com/kilianp07/teslamqtt/infra/logger"
)

// RefreshTokenSource exchanges the refresh token for access tokens using the
// OAuth2 refresh grant.
type RefreshTokenSource struct {
	conf   oauth2.Config
	client *http.Client
	log    logger.Logger

	mu           sync.Mutex
	refreshToken string
}

// NewRefreshTokenSource builds a source from conf. A nil client uses
// http.DefaultClient.
func NewRefreshTokenSource(conf Conf, client *http.Client, log logger.Logger) *RefreshTokenSource {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &RefreshTokenSource{
		conf:         conf.toOauth2Config(),
		client:       client,
		log:          log,
		refreshToken: conf.RefreshToken,
	}
}

// Token performs one refresh grant.
func (s *RefreshTokenSource) Token(ctx context.Context) (model.AccessToken, error) {
	tok, _, err := s.refresh(ctx)
	return tok, err
}

// RefreshToken returns the refresh token used for the next grant.
func (s *RefreshTokenSource) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshToken
}

func (s *RefreshTokenSource) refresh(ctx context.Context) (model.AccessToken, bool, error) {
	s.mu.Lock()
	seed := s.refreshToken
	s.mu.Unlock()

	if s.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	}
	tok, err := s.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: seed}).Token()
	if err != nil {
		return model.AccessToken{}, false, classify(err)
	}

	rotated := tok.RefreshToken != "" && tok.RefreshToken != seed
	if rotated {
		s.log.Errorf("refresh token changed after refresh")
		s.mu.Lock()
		s.refreshToken = tok.RefreshToken
		s.mu.Unlock()
	}
	return model.AccessToken{Token: tok.AccessToken, Expiry: tok.Expiry}, rotated, nil
}

func classify(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return &tesla.APIError{StatusCode: re.Response.StatusCode, Body: string(re.Body)}
	}
	return tesla.ErrConnection.Wrap(err)
}
