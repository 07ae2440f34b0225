package tado

import "time"

// Snapshot is one consistent view of a home, rebuilt on every refresh.
// Maps and slices are shared between readers and must not be mutated.
type Snapshot struct {
	HomeID   int
	HomeName string

	Rooms        map[int]Room
	Devices      map[string]Device // by serial number
	OtherDevices []Device          // bridges and controllers listed outside rooms

	Presence       Presence
	PresenceLocked bool

	Weather       *Weather
	MobileDevices map[int]MobileDevice
	AirComfort    map[int]AirComfort
	Flow          *FlowTemperature // nil when the home has no flow temperature control

	API APIStats

	RateLimited    bool
	RateLimitReset time.Time

	UpdatedAt time.Time
}

type Room struct {
	ID                 int
	Name               string
	CurrentTemperature *float64
	TargetTemperature  *float64
	Humidity           *float64
	HeatingPower       int // percent
	Power              Power
	Connection         ConnectionState

	ManualControlActive    bool
	ManualControlRemaining *int // seconds
	ManualControlType      Termination

	BoostMode          bool
	OpenWindowDetected bool

	NextScheduleChange      string
	NextScheduleTemperature *float64

	Devices          []Device
	RunningTimeToday int // seconds
}

type Device struct {
	Serial              string
	Type                DeviceType
	Firmware            string
	Connection          ConnectionState
	Battery             BatteryState
	TemperatureMeasured *float64
	TemperatureOffset   float64
	MountingState       string
	ChildLockEnabled    bool
	RoomID              int
	RoomName            string
}

type Weather struct {
	OutdoorTemperature *float64
	SolarIntensity     *float64
	State              string
}

type MobileDeviceMetadata struct {
	Platform  string
	OSVersion string
	Model     string
	Locale    string
}

type MobileDevice struct {
	ID                int
	Name              string
	Metadata          MobileDeviceMetadata
	Location          Presence // empty when the device reports no location
	AtHome            bool
	GeofencingEnabled bool
}

type AirComfort struct {
	RoomID       int
	Freshness    string // humidity level: HUMID, COMFY, DRY
	ComfortLevel string // temperature level: COLD, COMFY, WARM
}

type FlowTemperature struct {
	Max            *int
	Min            *int // lower constraint
	Limit          *int // upper constraint
	AutoAdaptation bool
	AutoValue      *int
}

// APIStats mirrors the request budget as tracked by the client.
type APIStats struct {
	CallsToday     int
	ResetTime      time.Time
	HasAutoAssist  bool
	QuotaLimit     *int
	QuotaRemaining *int
}

// RoomControlDefaults are applied when a temperature is set without explicit termination.
type RoomControlDefaults struct {
	Termination     Termination
	DurationMinutes int
}

func DefaultRoomControl() RoomControlDefaults {
	return RoomControlDefaults{Termination: TerminationTimer, DurationMinutes: DefaultTimerMinutes}
}

// With returns d overridden by the non-zero fields of patch, so termination
// and duration can be changed independently.
func (d RoomControlDefaults) With(patch RoomControlDefaults) RoomControlDefaults {
	if patch.Termination != "" {
		d.Termination = patch.Termination
	}
	if patch.DurationMinutes != 0 {
		d.DurationMinutes = patch.DurationMinutes
	}
	return d
}

// Room returns the room with the given id.
func (s Snapshot) Room(id int) (Room, bool) {
	r, ok := s.Rooms[id]
	return r, ok
}
