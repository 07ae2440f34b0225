package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Agrid-Dev/tadox/internal/tado"
)

func (c *Client) GetRooms(ctx context.Context) ([]Room, error) {
	var rooms []Room
	err := c.homeRequest(ctx, http.MethodGet, c.cfg.HopsURL, "rooms", nil, &rooms)
	return rooms, err
}

func (c *Client) GetRoomsAndDevices(ctx context.Context) (RoomsAndDevices, error) {
	var out RoomsAndDevices
	err := c.homeRequest(ctx, http.MethodGet, c.cfg.HopsURL, "roomsAndDevices", nil, &out)
	return out, err
}

func roomPath(roomID int, action string) string {
	return fmt.Sprintf("rooms/%d/%s", roomID, action)
}

func newTermination(t tado.Termination, d time.Duration) termination {
	term := termination{Type: string(t)}
	if t == tado.TerminationTimer {
		term.DurationInSeconds = int(d / time.Second)
	}
	return term
}

// SetRoomTemperature starts manual control at celsius. The duration is only
// sent for timer terminations.
func (c *Client) SetRoomTemperature(ctx context.Context, roomID int, celsius float64, t tado.Termination, d time.Duration) error {
	body := manualControlRequest{
		Setting: manualSetting{
			Power:       string(tado.PowerOn),
			Temperature: &temperatureValue{Value: celsius},
		},
		Termination: newTermination(t, d),
	}
	return c.homeRequest(ctx, http.MethodPost, c.cfg.HopsURL, roomPath(roomID, "manualControl"), body, nil)
}

// SetRoomOff switches heating off in a room under manual control.
func (c *Client) SetRoomOff(ctx context.Context, roomID int, t tado.Termination, d time.Duration) error {
	body := manualControlRequest{
		Setting:     manualSetting{Power: string(tado.PowerOff)},
		Termination: newTermination(t, d),
	}
	return c.homeRequest(ctx, http.MethodPost, c.cfg.HopsURL, roomPath(roomID, "manualControl"), body, nil)
}

// ResumeSchedule cancels manual control for a room.
func (c *Client) ResumeSchedule(ctx context.Context, roomID int) error {
	return c.homeRequest(ctx, http.MethodDelete, c.cfg.HopsURL, roomPath(roomID, "manualControl"), nil, nil)
}

func (c *Client) SetBoost(ctx context.Context, roomID int) error {
	return c.homeRequest(ctx, http.MethodPost, c.cfg.HopsURL, roomPath(roomID, "boost"), nil, nil)
}

func (c *Client) BoostAllHeating(ctx context.Context) error {
	return c.homeRequest(ctx, http.MethodPost, c.cfg.HopsURL, "quickActions/boost", nil, nil)
}

func (c *Client) DisableAllHeating(ctx context.Context) error {
	return c.homeRequest(ctx, http.MethodPost, c.cfg.HopsURL, "quickActions/allOff", nil, nil)
}

func (c *Client) ResumeAllSchedules(ctx context.Context) error {
	return c.homeRequest(ctx, http.MethodPost, c.cfg.HopsURL, "quickActions/resumeSchedule", nil, nil)
}

func (c *Client) SetOpenWindowDetection(ctx context.Context, roomID int, enabled bool) error {
	method := http.MethodDelete
	if enabled {
		method = http.MethodPost
	}
	return c.homeRequest(ctx, method, c.cfg.HopsURL, roomPath(roomID, "openWindow"), nil, nil)
}

func devicePath(serial string) string {
	return "roomsAndDevices/devices/" + url.PathEscape(serial)
}

func (c *Client) SetChildLock(ctx context.Context, serial string, enabled bool) error {
	body := map[string]bool{"childLockEnabled": enabled}
	return c.homeRequest(ctx, http.MethodPatch, c.cfg.HopsURL, devicePath(serial), body, nil)
}

// SetTemperatureOffset calibrates the sensor of a valve or thermostat.
func (c *Client) SetTemperatureOffset(ctx context.Context, serial string, offset float64) error {
	body := map[string]float64{"temperatureOffset": offset}
	return c.homeRequest(ctx, http.MethodPatch, c.cfg.HopsURL, devicePath(serial), body, nil)
}
