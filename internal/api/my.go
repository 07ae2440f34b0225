package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Agrid-Dev/tadox/internal/tado"
)

func (c *Client) GetMe(ctx context.Context) (Me, error) {
	var me Me
	err := c.do(ctx, http.MethodGet, strings.TrimRight(c.cfg.MyURL, "/")+"/me", nil, &me)
	return me, err
}

// GetHomes lists the homes of the logged-in account.
func (c *Client) GetHomes(ctx context.Context) ([]HomeRef, error) {
	me, err := c.GetMe(ctx)
	if err != nil {
		return nil, err
	}
	return me.Homes, nil
}

func (c *Client) GetHomeState(ctx context.Context) (HomeState, error) {
	var st HomeState
	err := c.homeRequest(ctx, http.MethodGet, c.cfg.MyURL, "state", nil, &st)
	return st, err
}

// SetPresence locks the home presence to HOME or AWAY.
func (c *Client) SetPresence(ctx context.Context, p tado.Presence) error {
	if p != tado.PresenceHome && p != tado.PresenceAway {
		return fmt.Errorf("%w: %q", tado.ErrInvalidPresenceMode, p)
	}
	return c.homeRequest(ctx, http.MethodPut, c.cfg.MyURL, "presenceLock", presenceLockRequest{HomePresence: string(p)}, nil)
}

// ClearPresenceLock hands presence back to geofencing.
func (c *Client) ClearPresenceLock(ctx context.Context) error {
	return c.homeRequest(ctx, http.MethodDelete, c.cfg.MyURL, "presenceLock", nil, nil)
}

func (c *Client) GetWeather(ctx context.Context) (Weather, error) {
	var w Weather
	err := c.homeRequest(ctx, http.MethodGet, c.cfg.MyURL, "weather", nil, &w)
	return w, err
}

func (c *Client) GetMobileDevices(ctx context.Context) ([]MobileDevice, error) {
	var out []MobileDevice
	err := c.homeRequest(ctx, http.MethodGet, c.cfg.MyURL, "mobileDevices", nil, &out)
	return out, err
}

func (c *Client) GetAirComfort(ctx context.Context) (AirComfort, error) {
	var ac AirComfort
	err := c.homeRequest(ctx, http.MethodGet, c.cfg.MyURL, "airComfort", nil, &ac)
	return ac, err
}

// GetFlowTemperatureOptimization returns nil when the home has no flow
// temperature control.
func (c *Client) GetFlowTemperatureOptimization(ctx context.Context) (*FlowTemperatureOptimization, error) {
	var out *FlowTemperatureOptimization
	if err := c.homeRequest(ctx, http.MethodGet, c.cfg.MyURL, "flowTemperatureOptimization", nil, &out); err != nil {
		return nil, err
	}
	if out.Empty() {
		return nil, nil
	}
	return out, nil
}

func (c *Client) SetMaxFlowTemperature(ctx context.Context, celsius int) error {
	body := map[string]int{"maxFlowTemperature": celsius}
	return c.homeRequest(ctx, http.MethodPatch, c.cfg.MyURL, "flowTemperatureOptimization", body, nil)
}
