package api

import (
	"bytes"
	"encoding/json"
)

// Vendor JSON shapes. Every nested object may be null or missing.

type Me struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Homes []HomeRef `json:"homes"`
}

type HomeRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type HomeState struct {
	Presence       string `json:"presence"`
	PresenceLocked bool   `json:"presenceLocked"`
}

type Value struct {
	Value *float64 `json:"value"`
}

type Percentage struct {
	Percentage *float64 `json:"percentage"`
}

type Connection struct {
	State string `json:"state"`
}

type RoomSetting struct {
	Power       string `json:"power"`
	Temperature *Value `json:"temperature"`
}

type SensorDataPoints struct {
	InsideTemperature *Value      `json:"insideTemperature"`
	Humidity          *Percentage `json:"humidity"`
}

type ManualControlTermination struct {
	Type                   string `json:"type"`
	RemainingTimeInSeconds *int   `json:"remainingTimeInSeconds"`
	ProjectedExpiry        string `json:"projectedExpiry"`
}

type ScheduleChange struct {
	Start   string       `json:"start"`
	Setting *RoomSetting `json:"setting"`
}

// Room is one entry of GET /homes/{id}/rooms.
type Room struct {
	ID                       int                       `json:"id"`
	Name                     string                    `json:"name"`
	SensorDataPoints         *SensorDataPoints         `json:"sensorDataPoints"`
	Setting                  *RoomSetting              `json:"setting"`
	ManualControlTermination *ManualControlTermination `json:"manualControlTermination"`
	BoostMode                json.RawMessage           `json:"boostMode"`
	OpenWindow               json.RawMessage           `json:"openWindow"`
	NextScheduleChange       *ScheduleChange           `json:"nextScheduleChange"`
	HeatingPower             *Percentage               `json:"heatingPower"`
	Connection               *Connection               `json:"connection"`
}

func (r Room) BoostActive() bool      { return present(r.BoostMode) }
func (r Room) OpenWindowActive() bool { return present(r.OpenWindow) }

type RoomsAndDevices struct {
	Rooms        []RoomDevices `json:"rooms"`
	OtherDevices []DeviceInfo  `json:"otherDevices"`
}

type RoomDevices struct {
	RoomID   int          `json:"roomId"`
	RoomName string       `json:"roomName"`
	Devices  []DeviceInfo `json:"devices"`
}

type DeviceInfo struct {
	SerialNumber          string          `json:"serialNumber"`
	Type                  string          `json:"type"`
	FirmwareVersion       string          `json:"firmwareVersion"`
	Connection            *Connection     `json:"connection"`
	BatteryState          string          `json:"batteryState"`
	TemperatureAsMeasured *float64        `json:"temperatureAsMeasured"`
	TemperatureOffset     *float64        `json:"temperatureOffset"`
	MountingState         json.RawMessage `json:"mountingState"`
	ChildLockEnabled      bool            `json:"childLockEnabled"`
	RoomID                int             `json:"roomId"`
}

// Mounting returns the mounting state whether the vendor sent a bare string
// or an object with a value field.
func (d DeviceInfo) Mounting() string {
	if !present(d.MountingState) {
		return ""
	}
	var s string
	if err := json.Unmarshal(d.MountingState, &s); err == nil {
		return s
	}
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(d.MountingState, &obj); err == nil {
		return obj.Value
	}
	return ""
}

type Weather struct {
	OutsideTemperature *struct {
		Celsius *float64 `json:"celsius"`
	} `json:"outsideTemperature"`
	SolarIntensity *Percentage `json:"solarIntensity"`
	WeatherState   *struct {
		Value string `json:"value"`
	} `json:"weatherState"`
}

type MobileDevice struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Settings *struct {
		GeoTrackingEnabled bool `json:"geoTrackingEnabled"`
	} `json:"settings"`
	Location *struct {
		AtHome bool `json:"atHome"`
	} `json:"location"`
	DeviceMetadata *struct {
		Platform  string `json:"platform"`
		OSVersion string `json:"osVersion"`
		Model     string `json:"model"`
		Locale    string `json:"locale"`
	} `json:"deviceMetadata"`
}

type AirComfort struct {
	Comfort []RoomComfort `json:"comfort"`
}

type RoomComfort struct {
	RoomID           int    `json:"roomId"`
	TemperatureLevel string `json:"temperatureLevel"`
	HumidityLevel    string `json:"humidityLevel"`
}

type RunningTimes struct {
	RunningTimes []struct {
		StartTime string `json:"startTime"`
		EndTime   string `json:"endTime"`
		Zones     []struct {
			ID                   int `json:"id"`
			RunningTimeInSeconds int `json:"runningTimeInSeconds"`
		} `json:"zones"`
	} `json:"runningTimes"`
}

type FlowTemperatureOptimization struct {
	MaxFlowTemperature            *int `json:"maxFlowTemperature"`
	MaxFlowTemperatureConstraints *struct {
		Min *int `json:"min"`
		Max *int `json:"max"`
	} `json:"maxFlowTemperatureConstraints"`
	AutoAdaptation *struct {
		Enabled            bool `json:"enabled"`
		MaxFlowTemperature *int `json:"maxFlowTemperature"`
	} `json:"autoAdaptation"`
}

// Empty reports whether the vendor sent no flow temperature data at all,
// as for `{}`.
func (f *FlowTemperatureOptimization) Empty() bool {
	return f == nil || (f.MaxFlowTemperature == nil && f.MaxFlowTemperatureConstraints == nil && f.AutoAdaptation == nil)
}

// Request bodies.

type temperatureValue struct {
	Value float64 `json:"value"`
}

type manualSetting struct {
	Power       string            `json:"power"`
	Temperature *temperatureValue `json:"temperature,omitempty"`
}

type termination struct {
	Type              string `json:"type"`
	DurationInSeconds int    `json:"durationInSeconds,omitempty"`
}

type manualControlRequest struct {
	Setting     manualSetting `json:"setting"`
	Termination termination   `json:"termination"`
}

type presenceLockRequest struct {
	HomePresence string `json:"homePresence"`
}

type meterReadingRequest struct {
	Date    string `json:"date"`
	Reading int    `json:"reading"`
}

type tariffRequest struct {
	TariffInCents float64 `json:"tariffInCents"`
	Unit          string  `json:"unit"`
	StartDate     string  `json:"startDate"`
	EndDate       string  `json:"endDate,omitempty"`
}

// present reports whether a field was sent with a non-null value. An empty
// object still counts.
func present(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}
