// Package tesla implements the owner REST API over HTTP.
package tesla

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/kilianp07/teslamqtt/core/jsonvalue"
	"github.com/kilianp07/teslamqtt/core/model"
	coretesla "github.com/kilianp07/teslamqtt/core/tesla"
	"github.com/kilianp07/teslamqtt/infra/logger"
)

const (
	DefaultBaseURL   = "https://owner-api.teslamotors.com/"
	DefaultUserAgent = "TeslaApp/4.10.0"
	DefaultTimeout   = 30 * time.Second
)

// Config holds the REST endpoint settings.
type Config struct {
	BaseURL   string        `json:"base_url"`
	UserAgent string        `json:"user_agent"`
	Timeout   time.Duration `json:"timeout"`
}

// SetDefaults applies the owner API defaults.
func (c *Config) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Client is the HTTP implementation of core/tesla.API.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	tokens    coretesla.TokenProvider
	log       logger.Logger
}

var _ coretesla.API = (*Client)(nil)

// NewClient creates a client authenticating with tokens. A nil httpClient
// uses one with cfg.Timeout.
func NewClient(cfg Config, tokens coretesla.TokenProvider, httpClient *http.Client, log logger.Logger) *Client {
	cfg.SetDefaults()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Client{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/") + "/",
		userAgent: cfg.UserAgent,
		http:      httpClient,
		tokens:    tokens,
		log:       log,
	}
}

func vehiclePath(id model.VehicleID, suffix string) string {
	return "api/1/vehicles/" + id.String() + "/" + suffix
}

func (c *Client) do(ctx context.Context, method, path string, body map[string]jsonvalue.Value) ([]byte, error) {
	tok, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(jsonvalue.Object(body))
		if err != nil {
			return nil, coretesla.ErrEncoding.Wrap(err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+strings.TrimPrefix(path, "/"), rdr)
	if err != nil {
		return nil, coretesla.ErrConnection.Wrap(err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, coretesla.ErrConnection.Wrap(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, coretesla.ErrConnection.Wrap(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized {
			c.tokens.InvalidateAccessToken()
		}
		return nil, &coretesla.APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// envelope extracts the "response" member of a reply.
func envelope(data []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, coretesla.ErrInvalidResponse.Wrap(errors.New("malformed json"))
	}
	res := gjson.GetBytes(data, "response")
	if !res.Exists() {
		return gjson.Result{}, coretesla.ErrInvalidResponse.Wrap(errors.New("missing response member"))
	}
	return res, nil
}

func decode(data []byte, out any) error {
	res, err := envelope(data)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(res.Raw), out); err != nil {
		return coretesla.ErrInvalidResponse.Wrap(err)
	}
	return nil
}

func (c *Client) command(ctx context.Context, id model.VehicleID, name string, body map[string]jsonvalue.Value) error {
	data, err := c.do(ctx, http.MethodPost, vehiclePath(id, "command/"+name), body)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if res := gjson.GetBytes(data, "response.result"); res.Exists() && !res.Bool() {
		c.log.Warnf("vehicle %s rejected %s: %s", id, name, gjson.GetBytes(data, "response.reason").String())
	}
	return nil
}

// ListVehicles returns every vehicle of the account.
func (c *Client) ListVehicles(ctx context.Context) ([]model.Vehicle, error) {
	data, err := c.do(ctx, http.MethodGet, "api/1/vehicles", nil)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	var vehicles []model.Vehicle
	if err := decode(data, &vehicles); err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	return vehicles, nil
}

// VehicleState returns the climate state document.
func (c *Client) VehicleState(ctx context.Context, id model.VehicleID) (jsonvalue.Value, error) {
	data, err := c.do(ctx, http.MethodGet, vehiclePath(id, "data_request/climate_state"), nil)
	if err != nil {
		return jsonvalue.Value{}, fmt.Errorf("vehicle state: %w", err)
	}
	var state jsonvalue.Value
	if err := decode(data, &state); err != nil {
		return jsonvalue.Value{}, fmt.Errorf("vehicle state: %w", err)
	}
	return state, nil
}

// WakeUp asks the vehicle to wake and returns its reported state.
func (c *Client) WakeUp(ctx context.Context, id model.VehicleID) (model.Vehicle, error) {
	data, err := c.do(ctx, http.MethodPost, vehiclePath(id, "wake_up"), nil)
	if err != nil {
		return model.Vehicle{}, fmt.Errorf("wake up: %w", err)
	}
	var v model.Vehicle
	if err := decode(data, &v); err != nil {
		return model.Vehicle{}, fmt.Errorf("wake up: %w", err)
	}
	return v, nil
}

func (c *Client) SetSentryMode(ctx context.Context, id model.VehicleID, on bool) error {
	return c.command(ctx, id, "set_sentry_mode", map[string]jsonvalue.Value{
		"on": jsonvalue.Bool(on),
	})
}

func (c *Client) SetChargeLimit(ctx context.Context, id model.VehicleID, percent int) error {
	if !coretesla.ValidChargeLimit(percent) {
		return coretesla.ErrInvalidChargeLimit
	}
	return c.command(ctx, id, "set_charge_limit", map[string]jsonvalue.Value{
		"percent": jsonvalue.Int(int64(percent)),
	})
}

func (c *Client) SetPreconditioning(ctx context.Context, id model.VehicleID, on bool) error {
	if on {
		return c.command(ctx, id, "auto_conditioning_start", nil)
	}
	return c.command(ctx, id, "auto_conditioning_stop", nil)
}

func (c *Client) SetTemperatures(ctx context.Context, id model.VehicleID, driver, passenger float64) error {
	return c.command(ctx, id, "set_temps", map[string]jsonvalue.Value{
		"driver_temp":    jsonvalue.Decimal(driver),
		"passenger_temp": jsonvalue.Decimal(passenger),
	})
}

// SetSeatHeatingMode validates the mode for the seat before sending it.
func (c *Client) SetSeatHeatingMode(ctx context.Context, id model.VehicleID, seat model.Seat, mode model.SeatHeatingMode) error {
	switch mode.Kind {
	case model.SeatModeHeat:
		if !coretesla.ValidSeatLevel(mode.Level) {
			return coretesla.ErrInvalidSeatLevel
		}
		return c.command(ctx, id, "remote_seat_heater_request", map[string]jsonvalue.Value{
			"heater": jsonvalue.Int(int64(seat.HeatCoolID())),
			"level":  jsonvalue.Int(int64(mode.Level)),
		})
	case model.SeatModeCool:
		if !coretesla.ValidSeatLevel(mode.Level) {
			return coretesla.ErrInvalidSeatLevel
		}
		return c.command(ctx, id, "remote_seat_cooler_request", map[string]jsonvalue.Value{
			"seat_position":     jsonvalue.Int(int64(seat.HeatCoolID())),
			"seat_cooler_level": jsonvalue.Int(int64(mode.Level)),
		})
	default:
		autoID, ok := seat.AutoID()
		if !ok {
			return coretesla.ErrSeatDoesNotSupportAutoMode
		}
		return c.command(ctx, id, "remote_auto_seat_climate_request", map[string]jsonvalue.Value{
			"auto_seat_position": jsonvalue.Int(int64(autoID)),
			"auto_climate_on":    jsonvalue.Bool(mode.Enabled),
		})
	}
}
