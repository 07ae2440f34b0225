package tado

import (
	"fmt"
	"strings"
)

// Power is the heating power setting reported by the vendor.
type Power string

const (
	PowerOn  Power = "ON"
	PowerOff Power = "OFF"
)

// Termination decides when a manual control overlay ends.
type Termination string

const (
	TerminationManual        Termination = "MANUAL"
	TerminationTimer         Termination = "TIMER"
	TerminationNextTimeBlock Termination = "NEXT_TIME_BLOCK"
)

func (t Termination) Valid() bool {
	return t == TerminationManual || t == TerminationTimer || t == TerminationNextTimeBlock
}

func ParseTermination(s string) (Termination, error) {
	t := Termination(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTermination, s)
	}
	return t, nil
}

// Presence is the home presence state. Empty when the vendor did not report it.
type Presence string

const (
	PresenceHome Presence = "HOME"
	PresenceAway Presence = "AWAY"
)

type ConnectionState string

const (
	Connected    ConnectionState = "CONNECTED"
	Disconnected ConnectionState = "DISCONNECTED"
)

type BatteryState string

const (
	BatteryNormal BatteryState = "NORMAL"
	BatteryLow    BatteryState = "LOW"
)

type DeviceType string

const (
	DeviceValve      DeviceType = "VA04" // radiator valve
	DeviceThermostat DeviceType = "TR04" // wireless receiver / thermostat
	DeviceBridge     DeviceType = "IB02"
	DeviceSensor     DeviceType = "SU04"
)

// TariffUnit is the unit an energy tariff is priced in.
type TariffUnit string

const (
	TariffCubicMeter TariffUnit = "m3"
	TariffKWh        TariffUnit = "kWh"
)

func (u TariffUnit) Valid() bool { return u == TariffCubicMeter || u == TariffKWh }

func ParseTariffUnit(s string) (TariffUnit, error) {
	switch s {
	case "m3":
		return TariffCubicMeter, nil
	case "kWh":
		return TariffKWh, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTariffUnit, s)
	}
}

// HVACMode is an integer enum.
type HVACMode int

const (
	HVACUnknown HVACMode = iota
	HVACHeat
	HVACOff
	HVACAuto
)

func (m HVACMode) Valid() bool {
	return m == HVACHeat || m == HVACOff || m == HVACAuto
}

func (m HVACMode) String() string {
	switch m {
	case HVACHeat:
		return "heat"
	case HVACOff:
		return "off"
	case HVACAuto:
		return "auto"
	default:
		return "unknown"
	}
}

func ParseHVACMode(s string) (HVACMode, error) {
	switch s {
	case "heat":
		return HVACHeat, nil
	case "off":
		return HVACOff, nil
	case "auto":
		return HVACAuto, nil
	default:
		return HVACUnknown, fmt.Errorf("%w: %q", ErrInvalidHVACMode, s)
	}
}

// HVACAction is what the room is doing right now.
type HVACAction int

const (
	ActionOff HVACAction = iota
	ActionIdle
	ActionHeating
)

func (a HVACAction) String() string {
	switch a {
	case ActionIdle:
		return "idle"
	case ActionHeating:
		return "heating"
	default:
		return "off"
	}
}

type Preset int

const (
	PresetNone Preset = iota
	PresetSchedule
	PresetHome
	PresetAway
	PresetAuto
)

func (p Preset) Valid() bool {
	return p == PresetSchedule || p == PresetHome || p == PresetAway || p == PresetAuto
}

func (p Preset) String() string {
	switch p {
	case PresetSchedule:
		return "schedule"
	case PresetHome:
		return "home"
	case PresetAway:
		return "away"
	case PresetAuto:
		return "auto"
	default:
		return "none"
	}
}

func ParsePreset(s string) (Preset, error) {
	switch s {
	case "schedule":
		return PresetSchedule, nil
	case "home":
		return PresetHome, nil
	case "away":
		return PresetAway, nil
	case "auto":
		return PresetAuto, nil
	default:
		return PresetNone, fmt.Errorf("%w: %q", ErrInvalidPreset, s)
	}
}

// PresenceMode is the home-wide presence selection: locked home/away or geofencing.
type PresenceMode int

const (
	PresenceUnknown PresenceMode = iota
	PresenceModeHome
	PresenceModeAway
	PresenceModeAuto
)

func (m PresenceMode) Valid() bool {
	return m == PresenceModeHome || m == PresenceModeAway || m == PresenceModeAuto
}

func (m PresenceMode) String() string {
	switch m {
	case PresenceModeHome:
		return "home"
	case PresenceModeAway:
		return "away"
	case PresenceModeAuto:
		return "auto"
	default:
		return "unknown"
	}
}

func ParsePresenceMode(s string) (PresenceMode, error) {
	switch s {
	case "home":
		return PresenceModeHome, nil
	case "away":
		return PresenceModeAway, nil
	case "auto":
		return PresenceModeAuto, nil
	default:
		return PresenceUnknown, fmt.Errorf("%w: %q", ErrInvalidPresenceMode, s)
	}
}
