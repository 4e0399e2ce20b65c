package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/kilianp07/teslamqtt/core/metrics"
	"github.com/kilianp07/teslamqtt/core/model"
	"github.com/kilianp07/teslamqtt/infra/logger"
)

// Provider hands out cached access tokens, refreshing them when needed.
// It implements tesla.TokenProvider.
type Provider struct {
	cache  *TokenCache
	source *RefreshTokenSource
	rec    metrics.TokenRefreshRecorder
	log    logger.Logger
}

// NewProvider wires a cache to a refresh grant built from conf. rec may be nil.
func NewProvider(conf Conf, client *http.Client, rec metrics.TokenRefreshRecorder, log logger.Logger) *Provider {
	if log == nil {
		log = logger.NopLogger{}
	}
	if rec == nil {
		rec = metrics.NopSink{}
	}
	return &Provider{
		cache:  NewTokenCache(),
		source: NewRefreshTokenSource(conf, client, log),
		rec:    rec,
		log:    log,
	}
}

// AccessToken returns a valid access token.
func (p *Provider) AccessToken(ctx context.Context) (model.AccessToken, error) {
	return p.cache.Get(ctx, p.refresh)
}

// InvalidateAccessToken forces the next AccessToken call to refresh.
func (p *Provider) InvalidateAccessToken() {
	p.cache.Invalidate()
}

func (p *Provider) refresh(ctx context.Context) (model.AccessToken, error) {
	start := time.Now()
	tok, rotated, err := p.source.refresh(ctx)
	ev := metrics.TokenRefreshEvent{Success: err == nil, Rotated: rotated, Duration: time.Since(start), Time: start}
	if rerr := p.rec.RecordTokenRefresh(ev); rerr != nil {
		p.log.Warnf("record token refresh: %v", rerr)
	}
	if err != nil {
		p.log.Errorf("access token refresh failed: %v", err)
		return model.AccessToken{}, err
	}
	p.log.Debugw("access token refreshed", map[string]any{"expiry": tok.Expiry})
	return tok, nil
}
