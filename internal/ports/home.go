package ports

import (
	"context"

	"github.com/Agrid-Dev/tadox/internal/tado"
)

// HomeService is the control-plane port used by controllers (HTTP/MQTT/Modbus).
// Writes go to the vendor cloud and request a fresh snapshot on success.
type HomeService interface {
	// Get returns the latest snapshot, or tado.ErrNoSnapshot before the first update.
	Get() (tado.Snapshot, error)
	RequestRefresh()

	// Climate
	SetTemperature(ctx context.Context, roomID int, celsius float64) error
	SetClimateTimer(ctx context.Context, roomID int, celsius float64, t tado.Termination, minutes int) error
	SetHVACMode(ctx context.Context, roomID int, m tado.HVACMode) error
	SetPreset(ctx context.Context, roomID int, p tado.Preset) error
	TurnOn(ctx context.Context, roomID int) error
	TurnOff(ctx context.Context, roomID int) error
	BoostRoom(ctx context.Context, roomID int) error

	// Home
	SetPresenceMode(ctx context.Context, m tado.PresenceMode) error
	BoostAll(ctx context.Context) error
	AllOff(ctx context.Context) error
	ResumeAllSchedules(ctx context.Context) error
	SetMaxFlowTemperature(ctx context.Context, celsius int) error

	// Switches and room settings
	SetChildLock(ctx context.Context, serial string, on bool) error
	SetOpenWindowDetection(ctx context.Context, roomID int, on bool) error
	RoomDefaults(roomID int) tado.RoomControlDefaults
	SetRoomDefaults(roomID int, d tado.RoomControlDefaults) error

	// Services
	SetTemperatureOffset(ctx context.Context, deviceID string, offset float64) error
	AddMeterReading(ctx context.Context, reading int, date string) error
	SetEIQTariff(ctx context.Context, tariff float64, unit tado.TariffUnit, start, end string) error
}
