package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/Agrid-Dev/tadox/internal/ports"
	"github.com/Agrid-Dev/tadox/internal/tado"
)

var _ ports.HomeService = (*FakeHomeService)(nil)

// Call is one recorded invocation on FakeHomeService.
type Call struct {
	Method string
	RoomID int
	Serial string
	Value  any
}

// FakeHomeService is a reusable fake implementing ports.HomeService.
// Put ONLY what multiple test packages need here.
type FakeHomeService struct {
	mu sync.Mutex

	S      tado.Snapshot
	NoData bool

	// Errs makes the named method fail, e.g. Errs["SetTemperature"].
	Errs map[string]error

	Defaults map[int]tado.RoomControlDefaults

	calls     []Call
	refreshes int
}

func f64(v float64) *float64 { return &v }

// NewFakeHomeService returns home 42 with a heated living room (1) and a
// switched-off bedroom (2).
func NewFakeHomeService() *FakeHomeService {
	valve := tado.Device{
		Serial: "VA0000000001", Type: tado.DeviceValve, Firmware: "245.1",
		Connection: tado.Connected, Battery: tado.BatteryNormal,
		TemperatureMeasured: f64(20.6), RoomID: 1, RoomName: "Living room",
	}
	sensor := tado.Device{
		Serial: "SU0000000002", Type: tado.DeviceSensor, Firmware: "245.1",
		Connection: tado.Connected, Battery: tado.BatteryLow,
		TemperatureMeasured: f64(18), TemperatureOffset: -0.5, RoomID: 2, RoomName: "Bedroom",
	}
	return &FakeHomeService{
		S: tado.Snapshot{
			HomeID:   42,
			HomeName: "Home",
			Rooms: map[int]tado.Room{
				1: {
					ID: 1, Name: "Living room",
					CurrentTemperature: f64(20.5), TargetTemperature: f64(21), Humidity: f64(45.5),
					HeatingPower: 30, Power: tado.PowerOn, Connection: tado.Connected,
					Devices: []tado.Device{valve},
				},
				2: {
					ID: 2, Name: "Bedroom",
					CurrentTemperature: f64(18), Humidity: f64(50),
					Power: tado.PowerOff, Connection: tado.Connected,
					ManualControlActive: true, ManualControlType: tado.TerminationManual,
					Devices: []tado.Device{sensor},
				},
			},
			Devices: map[string]tado.Device{
				valve.Serial:  valve,
				sensor.Serial: sensor,
			},
			Presence:  tado.PresenceHome,
			UpdatedAt: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		},
		Errs:     map[string]error{},
		Defaults: map[int]tado.RoomControlDefaults{},
	}
}

// Calls returns a copy of the recorded invocations.
func (f *FakeHomeService) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Last returns the most recent call to method.
func (f *FakeHomeService) Last(method string) (Call, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Method == method {
			return f.calls[i], true
		}
	}
	return Call{}, false
}

func (f *FakeHomeService) Refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

// SetSnapshot replaces the served snapshot.
func (f *FakeHomeService) SetSnapshot(s tado.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.S = s
	f.NoData = false
}

func (f *FakeHomeService) record(c Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.Errs[c.Method]
}

// updateRoom mutates a room in place after a successful write.
func (f *FakeHomeService) updateRoom(id int, fn func(*tado.Room)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.S.Rooms[id]
	if !ok {
		return
	}
	rooms := make(map[int]tado.Room, len(f.S.Rooms))
	for k, v := range f.S.Rooms {
		rooms[k] = v
	}
	fn(&r)
	rooms[id] = r
	f.S.Rooms = rooms
}

func (f *FakeHomeService) Get() (tado.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NoData {
		return tado.Snapshot{}, tado.ErrNoSnapshot
	}
	return f.S, nil
}

func (f *FakeHomeService) RequestRefresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
}

func (f *FakeHomeService) SetTemperature(_ context.Context, roomID int, celsius float64) error {
	if err := f.record(Call{Method: "SetTemperature", RoomID: roomID, Value: celsius}); err != nil {
		return err
	}
	f.updateRoom(roomID, func(r *tado.Room) {
		r.TargetTemperature = f64(celsius)
		r.Power = tado.PowerOn
		r.ManualControlActive = true
	})
	return nil
}

func (f *FakeHomeService) SetClimateTimer(_ context.Context, roomID int, celsius float64, t tado.Termination, minutes int) error {
	return f.record(Call{Method: "SetClimateTimer", RoomID: roomID, Value: TimerArgs{Celsius: celsius, Termination: t, Minutes: minutes}})
}

// TimerArgs is the Value recorded for SetClimateTimer.
type TimerArgs struct {
	Celsius     float64
	Termination tado.Termination
	Minutes     int
}

func (f *FakeHomeService) SetHVACMode(_ context.Context, roomID int, m tado.HVACMode) error {
	if err := f.record(Call{Method: "SetHVACMode", RoomID: roomID, Value: m}); err != nil {
		return err
	}
	f.updateRoom(roomID, func(r *tado.Room) {
		switch m {
		case tado.HVACOff:
			r.Power, r.ManualControlActive = tado.PowerOff, true
		case tado.HVACHeat:
			r.Power, r.ManualControlActive = tado.PowerOn, true
		case tado.HVACAuto:
			r.ManualControlActive = false
		}
	})
	return nil
}

func (f *FakeHomeService) SetPreset(_ context.Context, roomID int, p tado.Preset) error {
	return f.record(Call{Method: "SetPreset", RoomID: roomID, Value: p})
}

func (f *FakeHomeService) TurnOn(_ context.Context, roomID int) error {
	if err := f.record(Call{Method: "TurnOn", RoomID: roomID}); err != nil {
		return err
	}
	f.updateRoom(roomID, func(r *tado.Room) { r.Power, r.ManualControlActive = tado.PowerOn, true })
	return nil
}

func (f *FakeHomeService) TurnOff(_ context.Context, roomID int) error {
	if err := f.record(Call{Method: "TurnOff", RoomID: roomID}); err != nil {
		return err
	}
	f.updateRoom(roomID, func(r *tado.Room) { r.Power, r.ManualControlActive = tado.PowerOff, true })
	return nil
}

func (f *FakeHomeService) BoostRoom(_ context.Context, roomID int) error {
	return f.record(Call{Method: "BoostRoom", RoomID: roomID})
}

func (f *FakeHomeService) SetPresenceMode(_ context.Context, m tado.PresenceMode) error {
	return f.record(Call{Method: "SetPresenceMode", Value: m})
}

func (f *FakeHomeService) BoostAll(context.Context) error {
	return f.record(Call{Method: "BoostAll"})
}

func (f *FakeHomeService) AllOff(context.Context) error {
	return f.record(Call{Method: "AllOff"})
}

func (f *FakeHomeService) ResumeAllSchedules(context.Context) error {
	return f.record(Call{Method: "ResumeAllSchedules"})
}

func (f *FakeHomeService) SetMaxFlowTemperature(_ context.Context, celsius int) error {
	return f.record(Call{Method: "SetMaxFlowTemperature", Value: celsius})
}

func (f *FakeHomeService) SetChildLock(_ context.Context, serial string, on bool) error {
	return f.record(Call{Method: "SetChildLock", Serial: serial, Value: on})
}

func (f *FakeHomeService) SetOpenWindowDetection(_ context.Context, roomID int, on bool) error {
	return f.record(Call{Method: "SetOpenWindowDetection", RoomID: roomID, Value: on})
}

func (f *FakeHomeService) RoomDefaults(roomID int) tado.RoomControlDefaults {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.Defaults[roomID]; ok {
		return d
	}
	return tado.DefaultRoomControl()
}

func (f *FakeHomeService) SetRoomDefaults(roomID int, d tado.RoomControlDefaults) error {
	if err := f.record(Call{Method: "SetRoomDefaults", RoomID: roomID, Value: d}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Defaults[roomID] = d
	return nil
}

func (f *FakeHomeService) SetTemperatureOffset(_ context.Context, deviceID string, offset float64) error {
	return f.record(Call{Method: "SetTemperatureOffset", Serial: deviceID, Value: offset})
}

func (f *FakeHomeService) AddMeterReading(_ context.Context, reading int, date string) error {
	return f.record(Call{Method: "AddMeterReading", Value: MeterArgs{Reading: reading, Date: date}})
}

// MeterArgs is the Value recorded for AddMeterReading.
type MeterArgs struct {
	Reading int
	Date    string
}

func (f *FakeHomeService) SetEIQTariff(_ context.Context, tariff float64, unit tado.TariffUnit, start, end string) error {
	return f.record(Call{Method: "SetEIQTariff", Value: TariffArgs{Tariff: tariff, Unit: unit, Start: start, End: end}})
}

// TariffArgs is the Value recorded for SetEIQTariff.
type TariffArgs struct {
	Tariff     float64
	Unit       tado.TariffUnit
	Start, End string
}
