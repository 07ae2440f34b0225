package api

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/Agrid-Dev/tadox/internal/tado"
)

func TestWriteOperations(t *testing.T) {
	today := time.Date(2026, 3, 1, 9, 0, 0, 0, time.Local)

	tests := []struct {
		name   string
		call   func(ctx context.Context, c *Client) error
		method string
		path   string
		body   string
	}{
		{
			name: "set temperature with timer",
			call: func(ctx context.Context, c *Client) error {
				return c.SetRoomTemperature(ctx, 7, 21.5, tado.TerminationTimer, 30*time.Minute)
			},
			method: http.MethodPost,
			path:   "/hops/homes/42/rooms/7/manualControl",
			body:   `{"setting":{"power":"ON","temperature":{"value":21.5}},"termination":{"type":"TIMER","durationInSeconds":1800}}`,
		},
		{
			name: "set temperature until changed",
			call: func(ctx context.Context, c *Client) error {
				return c.SetRoomTemperature(ctx, 7, 19, tado.TerminationManual, 30*time.Minute)
			},
			method: http.MethodPost,
			path:   "/hops/homes/42/rooms/7/manualControl",
			body:   `{"setting":{"power":"ON","temperature":{"value":19}},"termination":{"type":"MANUAL"}}`,
		},
		{
			name: "room off until next block",
			call: func(ctx context.Context, c *Client) error {
				return c.SetRoomOff(ctx, 7, tado.TerminationNextTimeBlock, time.Hour)
			},
			method: http.MethodPost,
			path:   "/hops/homes/42/rooms/7/manualControl",
			body:   `{"setting":{"power":"OFF"},"termination":{"type":"NEXT_TIME_BLOCK"}}`,
		},
		{
			name:   "resume schedule",
			call:   func(ctx context.Context, c *Client) error { return c.ResumeSchedule(ctx, 7) },
			method: http.MethodDelete,
			path:   "/hops/homes/42/rooms/7/manualControl",
		},
		{
			name:   "boost room",
			call:   func(ctx context.Context, c *Client) error { return c.SetBoost(ctx, 7) },
			method: http.MethodPost,
			path:   "/hops/homes/42/rooms/7/boost",
		},
		{
			name:   "boost all",
			call:   func(ctx context.Context, c *Client) error { return c.BoostAllHeating(ctx) },
			method: http.MethodPost,
			path:   "/hops/homes/42/quickActions/boost",
		},
		{
			name:   "all off",
			call:   func(ctx context.Context, c *Client) error { return c.DisableAllHeating(ctx) },
			method: http.MethodPost,
			path:   "/hops/homes/42/quickActions/allOff",
		},
		{
			name:   "resume all schedules",
			call:   func(ctx context.Context, c *Client) error { return c.ResumeAllSchedules(ctx) },
			method: http.MethodPost,
			path:   "/hops/homes/42/quickActions/resumeSchedule",
		},
		{
			name:   "open window on",
			call:   func(ctx context.Context, c *Client) error { return c.SetOpenWindowDetection(ctx, 7, true) },
			method: http.MethodPost,
			path:   "/hops/homes/42/rooms/7/openWindow",
		},
		{
			name:   "open window off",
			call:   func(ctx context.Context, c *Client) error { return c.SetOpenWindowDetection(ctx, 7, false) },
			method: http.MethodDelete,
			path:   "/hops/homes/42/rooms/7/openWindow",
		},
		{
			name:   "child lock",
			call:   func(ctx context.Context, c *Client) error { return c.SetChildLock(ctx, "VA0123", true) },
			method: http.MethodPatch,
			path:   "/hops/homes/42/roomsAndDevices/devices/VA0123",
			body:   `{"childLockEnabled":true}`,
		},
		{
			name:   "temperature offset",
			call:   func(ctx context.Context, c *Client) error { return c.SetTemperatureOffset(ctx, "VA0123", -1.5) },
			method: http.MethodPatch,
			path:   "/hops/homes/42/roomsAndDevices/devices/VA0123",
			body:   `{"temperatureOffset":-1.5}`,
		},
		{
			name:   "presence away",
			call:   func(ctx context.Context, c *Client) error { return c.SetPresence(ctx, tado.PresenceAway) },
			method: http.MethodPut,
			path:   "/my/homes/42/presenceLock",
			body:   `{"homePresence":"AWAY"}`,
		},
		{
			name:   "presence auto",
			call:   func(ctx context.Context, c *Client) error { return c.ClearPresenceLock(ctx) },
			method: http.MethodDelete,
			path:   "/my/homes/42/presenceLock",
		},
		{
			name:   "max flow temperature",
			call:   func(ctx context.Context, c *Client) error { return c.SetMaxFlowTemperature(ctx, 55) },
			method: http.MethodPatch,
			path:   "/my/homes/42/flowTemperatureOptimization",
			body:   `{"maxFlowTemperature":55}`,
		},
		{
			name:   "meter reading today",
			call:   func(ctx context.Context, c *Client) error { return c.AddMeterReading(ctx, 1234, "") },
			method: http.MethodPost,
			path:   "/eiq/homes/42/meterReadings",
			body:   `{"date":"2026-03-01","reading":1234}`,
		},
		{
			name: "tariff",
			call: func(ctx context.Context, c *Client) error {
				return c.SetEIQTariff(ctx, 0.125, tado.TariffKWh, "", "2026-12-31")
			},
			method: http.MethodPost,
			path:   "/eiq/homes/42/tariffs",
			body:   `{"tariffInCents":13,"unit":"kWh","startDate":"2026-03-01","endDate":"2026-12-31"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newVendor(t, nil)
			c := newTestClient(t, v, func(cfg *Config) { cfg.Now = fixedClock(today) })
			// keep the token fresh relative to the fixed clock
			c.SetToken(Token{AccessToken: "access", RefreshToken: "refresh", Expiry: today.Add(time.Hour)})

			if err := tt.call(t.Context(), c); err != nil {
				t.Fatalf("call: %v", err)
			}
			req := v.last()
			if req.Method != tt.method || req.Path != tt.path {
				t.Fatalf("got %s %s want %s %s", req.Method, req.Path, tt.method, tt.path)
			}
			assertJSONBody(t, req.Body, tt.body)
		})
	}
}

func assertJSONBody(t *testing.T, got, want string) {
	t.Helper()
	if want == "" {
		if got != "" {
			t.Fatalf("expected empty body, got %s", got)
		}
		return
	}
	var g, w any
	if err := json.Unmarshal([]byte(got), &g); err != nil {
		t.Fatalf("body is not JSON: %q", got)
	}
	if err := json.Unmarshal([]byte(want), &w); err != nil {
		t.Fatalf("bad expectation: %v", err)
	}
	if !reflect.DeepEqual(g, w) {
		t.Fatalf("body=%s want %s", got, want)
	}
}

func TestWriteOperations_Validation(t *testing.T) {
	v := newVendor(t, nil)
	c := newTestClient(t, v)
	ctx := t.Context()

	if err := c.AddMeterReading(ctx, -1, ""); err != tado.ErrNegativeReading {
		t.Fatalf("expected ErrNegativeReading, got %v", err)
	}
	if err := c.SetEIQTariff(ctx, -0.1, tado.TariffKWh, "", ""); err != tado.ErrNegativeTariff {
		t.Fatalf("expected ErrNegativeTariff, got %v", err)
	}
	if err := c.SetEIQTariff(ctx, 1, tado.TariffUnit("l"), "", ""); err != tado.ErrInvalidTariffUnit {
		t.Fatalf("expected ErrInvalidTariffUnit, got %v", err)
	}
	if err := c.AddMeterReading(ctx, 1, "01/03/2026"); err == nil {
		t.Fatalf("expected date error")
	}
	if err := c.SetPresence(ctx, tado.Presence("")); err == nil {
		t.Fatalf("expected presence error")
	}
	if n := len(v.requests()); n != 0 {
		t.Fatalf("invalid input must not reach the vendor, got %d requests", n)
	}
}

func TestGetRunningTimes(t *testing.T) {
	v := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"runningTimes": []any{
				map[string]any{"zones": []any{map[string]any{"id": 3, "runningTimeInSeconds": 600}}},
			},
		})
	})
	c := newTestClient(t, v)

	rt, err := c.GetRunningTimes(t.Context(), "2026-03-01", "2026-03-01")
	if err != nil {
		t.Fatalf("GetRunningTimes: %v", err)
	}
	req := v.last()
	if req.Path != "/minder/homes/42/runningTimes" || req.Query != "from=2026-03-01&to=2026-03-01" {
		t.Fatalf("request=%+v", req)
	}
	if len(rt.RunningTimes) != 1 || rt.RunningTimes[0].Zones[0].RunningTimeInSeconds != 600 {
		t.Fatalf("running times=%+v", rt)
	}
}

func TestGetRooms_DecodesOptionalObjects(t *testing.T) {
	v := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": 1, "name": "Living", "boostMode": {"type": "TIMER"}, "openWindow": null,
			 "sensorDataPoints": {"insideTemperature": {"value": 20.5}, "humidity": {"percentage": 45}},
			 "setting": {"power": "ON", "temperature": {"value": 21}},
			 "heatingPower": {"percentage": 30}, "connection": {"state": "CONNECTED"}},
			{"id": 2, "name": "Bath", "sensorDataPoints": null, "setting": null},
			{"id": 3, "name": "Office", "boostMode": {}, "openWindow": {}}
		]`))
	})
	c := newTestClient(t, v)

	rooms, err := c.GetRooms(t.Context())
	if err != nil {
		t.Fatalf("GetRooms: %v", err)
	}
	if !rooms[0].BoostActive() || rooms[0].OpenWindowActive() {
		t.Fatalf("room 1 boost/window wrong")
	}
	if rooms[1].BoostActive() || rooms[1].SensorDataPoints != nil {
		t.Fatalf("room 2 should have no optional data")
	}
	if !rooms[2].BoostActive() || !rooms[2].OpenWindowActive() {
		t.Fatalf("empty objects must count as active")
	}
	if got := *rooms[0].SensorDataPoints.InsideTemperature.Value; got != 20.5 {
		t.Fatalf("inside temperature=%v", got)
	}
}

func TestDeviceInfoMounting(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"mountingState": "MOUNTED"}`, "MOUNTED"},
		{`{"mountingState": {"value": "UNMOUNTED", "timestamp": "x"}}`, "UNMOUNTED"},
		{`{"mountingState": null}`, ""},
		{`{"mountingState": {}}`, ""},
		{`{}`, ""},
	}
	for _, tt := range tests {
		var d DeviceInfo
		if err := json.Unmarshal([]byte(tt.raw), &d); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.raw, err)
		}
		if got := d.Mounting(); got != tt.want {
			t.Fatalf("%s: mounting=%q want %q", tt.raw, got, tt.want)
		}
	}
}

func TestGetFlowTemperatureOptimization_Empty(t *testing.T) {
	v := newVendor(t, nil) // 204
	c := newTestClient(t, v)

	flow, err := c.GetFlowTemperatureOptimization(t.Context())
	if err != nil || flow != nil {
		t.Fatalf("flow=%v err=%v", flow, err)
	}
}

func TestGetFlowTemperatureOptimization_EmptyObject(t *testing.T) {
	v := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{})
	})
	c := newTestClient(t, v)

	flow, err := c.GetFlowTemperatureOptimization(t.Context())
	if err != nil || flow != nil {
		t.Fatalf("flow=%+v err=%v", flow, err)
	}
}

func TestGetHomes(t *testing.T) {
	v := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"id":    "u1",
			"homes": []any{map[string]any{"id": 42, "name": "Chalet"}, map[string]any{"id": 43, "name": "Flat"}},
		})
	})
	c := newTestClient(t, v)
	c.SetHomeID(0)

	homes, err := c.GetHomes(t.Context())
	if err != nil {
		t.Fatalf("GetHomes: %v", err)
	}
	if v.last().Path != "/my/me" {
		t.Fatalf("path=%q", v.last().Path)
	}
	want := []HomeRef{{ID: 42, Name: "Chalet"}, {ID: 43, Name: "Flat"}}
	if !reflect.DeepEqual(homes, want) {
		t.Fatalf("homes=%+v", homes)
	}
}
