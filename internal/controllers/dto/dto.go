// Package dto holds the JSON views of a snapshot shared by the HTTP and MQTT
// controllers.
package dto

import (
	"maps"
	"slices"
	"time"

	"github.com/Agrid-Dev/tadox/internal/device"
	"github.com/Agrid-Dev/tadox/internal/tado"
)

type Snapshot struct {
	HomeID         int    `json:"home_id"`
	DeviceID       string `json:"device_id"`
	HomeName       string `json:"home_name"`
	Presence       string `json:"presence,omitempty"`
	PresenceMode   string `json:"presence_mode"`
	PresenceLocked bool   `json:"presence_locked"`

	Rooms         []Room         `json:"rooms"`
	Devices       []Device       `json:"devices"`
	OtherDevices  []Device       `json:"other_devices,omitempty"`
	Weather       *Weather       `json:"weather,omitempty"`
	MobileDevices []MobileDevice `json:"mobile_devices,omitempty"`
	Flow          *Flow          `json:"flow_temperature,omitempty"`

	API            API        `json:"api"`
	RateLimited    bool       `json:"rate_limited"`
	RateLimitReset *time.Time `json:"rate_limit_reset,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type Room struct {
	ID                 int      `json:"id"`
	DeviceID           string   `json:"device_id"`
	EntityID           string   `json:"entity_id"`
	Name               string   `json:"name"`
	CurrentTemperature *float64 `json:"current_temperature"`
	TargetTemperature  *float64 `json:"target_temperature"`
	Humidity           *float64 `json:"humidity"`
	HeatingPower       int      `json:"heating_power"`
	Heating            bool     `json:"heating"`
	Power              string   `json:"power"`
	HVACMode           string   `json:"hvac_mode"`
	HVACAction         string   `json:"hvac_action"`
	Preset             string   `json:"preset"`
	Available          bool     `json:"available"`

	ManualControl ManualControl `json:"manual_control"`
	Boost         bool          `json:"boost"`
	OpenWindow    bool          `json:"open_window"`

	NextScheduleChange      string   `json:"next_schedule_change,omitempty"`
	NextScheduleTemperature *float64 `json:"next_schedule_temperature,omitempty"`
	RunningTimeToday        int      `json:"running_time_today_seconds"`

	AirComfort *AirComfort `json:"air_comfort,omitempty"`
	Devices    []Device    `json:"devices"`
}

type ManualControl struct {
	Active           bool   `json:"active"`
	Type             string `json:"type,omitempty"`
	RemainingMinutes int    `json:"remaining_minutes"`
}

type AirComfort struct {
	Freshness    string `json:"freshness"`
	ComfortLevel string `json:"comfort_level"`
}

type Device struct {
	Serial        string   `json:"serial"`
	Type          string   `json:"type"`
	Firmware      string   `json:"firmware,omitempty"`
	Connected     bool     `json:"connected"`
	BatteryLow    *bool    `json:"battery_low,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	Offset        float64  `json:"temperature_offset"`
	MountingState string   `json:"mounting_state,omitempty"`
	ChildLock     bool     `json:"child_lock"`
	RoomID        int      `json:"room_id,omitempty"`
	RoomName      string   `json:"room_name,omitempty"`
}

type Weather struct {
	OutdoorTemperature *float64 `json:"outdoor_temperature"`
	SolarIntensity     *float64 `json:"solar_intensity"`
	State              string   `json:"state"`
}

type MobileDevice struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	Platform          string `json:"platform,omitempty"`
	Model             string `json:"model,omitempty"`
	Location          string `json:"location,omitempty"`
	AtHome            bool   `json:"at_home"`
	GeofencingEnabled bool   `json:"geofencing_enabled"`
}

type Flow struct {
	Max            *int `json:"max"`
	Min            *int `json:"min"`
	Limit          *int `json:"limit"`
	AutoAdaptation bool `json:"auto_adaptation"`
	AutoValue      *int `json:"auto_value"`
}

type API struct {
	CallsToday     int       `json:"calls_today"`
	ResetTime      time.Time `json:"reset_time"`
	AutoAssist     bool      `json:"auto_assist"`
	QuotaLimit     *int      `json:"quota_limit"`
	QuotaRemaining *int      `json:"quota_remaining"`
}

func FromSnapshot(s tado.Snapshot) Snapshot {
	out := Snapshot{
		HomeID:         s.HomeID,
		DeviceID:       device.HomeDeviceID(s.HomeID),
		HomeName:       s.HomeName,
		Presence:       string(s.Presence),
		PresenceMode:   s.PresenceMode().String(),
		PresenceLocked: s.PresenceLocked,
		Rooms:          make([]Room, 0, len(s.Rooms)),
		Devices:        make([]Device, 0, len(s.Devices)),
		API: API{
			CallsToday:     s.API.CallsToday,
			ResetTime:      s.API.ResetTime,
			AutoAssist:     s.API.HasAutoAssist,
			QuotaLimit:     s.API.QuotaLimit,
			QuotaRemaining: s.API.QuotaRemaining,
		},
		RateLimited: s.RateLimited,
		UpdatedAt:   s.UpdatedAt,
	}
	if s.RateLimited && !s.RateLimitReset.IsZero() {
		reset := s.RateLimitReset
		out.RateLimitReset = &reset
	}

	for _, id := range slices.Sorted(maps.Keys(s.Rooms)) {
		out.Rooms = append(out.Rooms, FromRoom(s, s.Rooms[id]))
	}
	for _, serial := range slices.Sorted(maps.Keys(s.Devices)) {
		out.Devices = append(out.Devices, FromDevice(s.Devices[serial]))
	}
	for _, d := range s.OtherDevices {
		out.OtherDevices = append(out.OtherDevices, FromDevice(d))
	}
	if w := s.Weather; w != nil {
		out.Weather = &Weather{OutdoorTemperature: w.OutdoorTemperature, SolarIntensity: w.SolarIntensity, State: w.State}
	}
	for _, id := range slices.Sorted(maps.Keys(s.MobileDevices)) {
		m := s.MobileDevices[id]
		out.MobileDevices = append(out.MobileDevices, MobileDevice{
			ID:                m.ID,
			Name:              m.Name,
			Platform:          m.Metadata.Platform,
			Model:             m.Metadata.Model,
			Location:          string(m.Location),
			AtHome:            m.AtHome,
			GeofencingEnabled: m.GeofencingEnabled,
		})
	}
	if f := s.Flow; f != nil {
		out.Flow = &Flow{Max: f.Max, Min: f.Min, Limit: f.Limit, AutoAdaptation: f.AutoAdaptation, AutoValue: f.AutoValue}
	}
	return out
}

// FromRoom needs the whole snapshot for the preset and air comfort.
func FromRoom(s tado.Snapshot, r tado.Room) Room {
	out := Room{
		ID:                 r.ID,
		DeviceID:           device.RoomDeviceID(s.HomeID, r.ID),
		EntityID:           device.ClimateEntityID(s.HomeID, r.ID),
		Name:               r.Name,
		CurrentTemperature: r.CurrentTemperature,
		TargetTemperature:  r.DisplayTarget(),
		Humidity:           r.Humidity,
		HeatingPower:       r.HeatingPower,
		Heating:            r.Heating(),
		Power:              string(r.Power),
		HVACMode:           r.HVACMode().String(),
		HVACAction:         r.HVACAction().String(),
		Preset:             s.Preset(r.ID).String(),
		Available:          r.Available(),
		ManualControl: ManualControl{
			Active:           r.ManualControlActive,
			Type:             string(r.ManualControlType),
			RemainingMinutes: r.ManualControlRemainingMinutes(),
		},
		Boost:                   r.BoostMode,
		OpenWindow:              r.OpenWindowDetected,
		NextScheduleChange:      r.NextScheduleChange,
		NextScheduleTemperature: r.NextScheduleTemperature,
		RunningTimeToday:        r.RunningTimeToday,
		Devices:                 make([]Device, 0, len(r.Devices)),
	}
	if ac, ok := s.AirComfort[r.ID]; ok {
		out.AirComfort = &AirComfort{Freshness: ac.Freshness, ComfortLevel: ac.ComfortLevel}
	}
	for _, d := range r.Devices {
		out.Devices = append(out.Devices, FromDevice(d))
	}
	return out
}

func FromDevice(d tado.Device) Device {
	out := Device{
		Serial:        d.Serial,
		Type:          string(d.Type),
		Firmware:      d.Firmware,
		Connected:     d.Connected(),
		Temperature:   d.TemperatureMeasured,
		Offset:        d.TemperatureOffset,
		MountingState: d.MountingState,
		ChildLock:     d.ChildLockEnabled,
		RoomID:        d.RoomID,
		RoomName:      d.RoomName,
	}
	if low, known := d.BatteryLow(); known {
		out.BatteryLow = &low
	}
	return out
}
