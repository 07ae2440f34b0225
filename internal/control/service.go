// Package control implements ports.HomeService on top of the vendor client
// and the refresh coordinator.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Agrid-Dev/tadox/internal/device"
	"github.com/Agrid-Dev/tadox/internal/ports"
	"github.com/Agrid-Dev/tadox/internal/tado"
)

// Flow temperature bounds used when the home reports no constraints.
const (
	defaultFlowMin = 20
	defaultFlowMax = 75
)

// API is the write side of the vendor client.
type API interface {
	SetRoomTemperature(ctx context.Context, roomID int, celsius float64, t tado.Termination, d time.Duration) error
	SetRoomOff(ctx context.Context, roomID int, t tado.Termination, d time.Duration) error
	ResumeSchedule(ctx context.Context, roomID int) error
	SetBoost(ctx context.Context, roomID int) error
	BoostAllHeating(ctx context.Context) error
	DisableAllHeating(ctx context.Context) error
	ResumeAllSchedules(ctx context.Context) error
	SetOpenWindowDetection(ctx context.Context, roomID int, enabled bool) error
	SetChildLock(ctx context.Context, serial string, enabled bool) error
	SetTemperatureOffset(ctx context.Context, serial string, offset float64) error
	SetPresence(ctx context.Context, p tado.Presence) error
	ClearPresenceLock(ctx context.Context) error
	SetMaxFlowTemperature(ctx context.Context, celsius int) error
	AddMeterReading(ctx context.Context, reading int, date string) error
	SetEIQTariff(ctx context.Context, tariff float64, unit tado.TariffUnit, start, end string) error
}

// Home is the coordinator state the service reads and updates.
type Home interface {
	Snapshot() (tado.Snapshot, bool)
	RequestRefresh()
	RoomDefaults(roomID int) tado.RoomControlDefaults
	SetRoomDefaults(roomID int, d tado.RoomControlDefaults) error
}

type Service struct {
	api  API
	home Home
	log  *slog.Logger
}

var _ ports.HomeService = (*Service)(nil)

func New(api API, home Home, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{api: api, home: home, log: log}
}

func (s *Service) Get() (tado.Snapshot, error) {
	snap, ok := s.home.Snapshot()
	if !ok {
		return tado.Snapshot{}, tado.ErrNoSnapshot
	}
	return snap, nil
}

func (s *Service) RequestRefresh() { s.home.RequestRefresh() }

func (s *Service) room(roomID int) (tado.Room, error) {
	snap, err := s.Get()
	if err != nil {
		return tado.Room{}, err
	}
	r, ok := snap.Room(roomID)
	if !ok {
		return tado.Room{}, fmt.Errorf("%w: %d", tado.ErrUnknownRoom, roomID)
	}
	return r, nil
}

// done requests a refresh after a successful write.
func (s *Service) done(err error) error {
	if err != nil {
		return err
	}
	s.home.RequestRefresh()
	return nil
}

// SetTemperature applies the room's default termination and duration.
func (s *Service) SetTemperature(ctx context.Context, roomID int, celsius float64) error {
	if err := tado.ValidateTemperature(celsius); err != nil {
		return err
	}
	if _, err := s.room(roomID); err != nil {
		return err
	}
	d := s.home.RoomDefaults(roomID)
	return s.done(s.api.SetRoomTemperature(ctx, roomID, tado.RoundTemperature(celsius), d.Termination, minutes(d.DurationMinutes)))
}

// SetClimateTimer sets a temperature with an explicit termination. An empty
// termination means TIMER.
func (s *Service) SetClimateTimer(ctx context.Context, roomID int, celsius float64, t tado.Termination, mins int) error {
	if t == "" {
		t = tado.TerminationTimer
	}
	if !t.Valid() {
		return fmt.Errorf("%w: %q", tado.ErrInvalidTermination, t)
	}
	if t == tado.TerminationTimer {
		if err := tado.ValidateTimerMinutes(mins); err != nil {
			return err
		}
	}
	if err := tado.ValidateTemperature(celsius); err != nil {
		return err
	}
	if _, err := s.room(roomID); err != nil {
		return err
	}
	if err := s.done(s.api.SetRoomTemperature(ctx, roomID, tado.RoundTemperature(celsius), t, minutes(mins))); err != nil {
		return err
	}
	s.log.Info("climate timer set",
		slog.Int("room_id", roomID),
		slog.Float64("temperature", celsius),
		slog.String("termination", string(t)),
		slog.Int("minutes", mins),
	)
	return nil
}

func (s *Service) SetHVACMode(ctx context.Context, roomID int, m tado.HVACMode) error {
	if !m.Valid() {
		return tado.ErrInvalidHVACMode
	}
	r, err := s.room(roomID)
	if err != nil {
		return err
	}
	switch m {
	case tado.HVACOff:
		err = s.api.SetRoomOff(ctx, roomID, tado.TerminationManual, 0)
	case tado.HVACHeat:
		err = s.api.SetRoomTemperature(ctx, roomID, onTarget(r), tado.TerminationManual, 0)
	default:
		err = s.api.ResumeSchedule(ctx, roomID)
	}
	return s.done(err)
}

// SetPreset resumes the room schedule or changes the home presence.
func (s *Service) SetPreset(ctx context.Context, roomID int, p tado.Preset) error {
	if !p.Valid() {
		return tado.ErrInvalidPreset
	}
	if _, err := s.room(roomID); err != nil {
		return err
	}
	var err error
	switch p {
	case tado.PresetSchedule:
		err = s.api.ResumeSchedule(ctx, roomID)
	case tado.PresetHome:
		err = s.api.SetPresence(ctx, tado.PresenceHome)
	case tado.PresetAway:
		err = s.api.SetPresence(ctx, tado.PresenceAway)
	default:
		err = s.api.ClearPresenceLock(ctx)
	}
	return s.done(err)
}

func (s *Service) TurnOn(ctx context.Context, roomID int) error {
	r, err := s.room(roomID)
	if err != nil {
		return err
	}
	return s.done(s.api.SetRoomTemperature(ctx, roomID, onTarget(r), tado.TerminationManual, 0))
}

func (s *Service) TurnOff(ctx context.Context, roomID int) error {
	if _, err := s.room(roomID); err != nil {
		return err
	}
	return s.done(s.api.SetRoomOff(ctx, roomID, tado.TerminationManual, 0))
}

func (s *Service) BoostRoom(ctx context.Context, roomID int) error {
	if _, err := s.room(roomID); err != nil {
		return err
	}
	return s.done(s.api.SetBoost(ctx, roomID))
}

func (s *Service) SetPresenceMode(ctx context.Context, m tado.PresenceMode) error {
	var err error
	switch m {
	case tado.PresenceModeHome:
		err = s.api.SetPresence(ctx, tado.PresenceHome)
	case tado.PresenceModeAway:
		err = s.api.SetPresence(ctx, tado.PresenceAway)
	case tado.PresenceModeAuto:
		err = s.api.ClearPresenceLock(ctx)
	default:
		return tado.ErrInvalidPresenceMode
	}
	return s.done(err)
}

func (s *Service) BoostAll(ctx context.Context) error {
	return s.done(s.api.BoostAllHeating(ctx))
}

func (s *Service) AllOff(ctx context.Context) error {
	return s.done(s.api.DisableAllHeating(ctx))
}

func (s *Service) ResumeAllSchedules(ctx context.Context) error {
	return s.done(s.api.ResumeAllSchedules(ctx))
}

// SetMaxFlowTemperature checks celsius against the constraints the home
// reports.
func (s *Service) SetMaxFlowTemperature(ctx context.Context, celsius int) error {
	snap, err := s.Get()
	if err != nil {
		return err
	}
	if snap.Flow == nil {
		return tado.ErrFlowTemperatureUnavailable
	}
	lo, hi := defaultFlowMin, defaultFlowMax
	if snap.Flow.Min != nil {
		lo = *snap.Flow.Min
	}
	if snap.Flow.Limit != nil {
		hi = *snap.Flow.Limit
	}
	if celsius < lo || celsius > hi {
		return fmt.Errorf("%w: %d not in [%d, %d]", tado.ErrFlowTemperatureOutOfRange, celsius, lo, hi)
	}
	return s.done(s.api.SetMaxFlowTemperature(ctx, celsius))
}

func (s *Service) SetChildLock(ctx context.Context, serial string, on bool) error {
	snap, err := s.Get()
	if err != nil {
		return err
	}
	if _, ok := snap.Devices[serial]; !ok {
		return fmt.Errorf("%w: %s", tado.ErrUnknownDevice, serial)
	}
	return s.done(s.api.SetChildLock(ctx, serial, on))
}

func (s *Service) SetOpenWindowDetection(ctx context.Context, roomID int, on bool) error {
	if _, err := s.room(roomID); err != nil {
		return err
	}
	return s.done(s.api.SetOpenWindowDetection(ctx, roomID, on))
}

func (s *Service) RoomDefaults(roomID int) tado.RoomControlDefaults {
	return s.home.RoomDefaults(roomID)
}

func (s *Service) SetRoomDefaults(roomID int, d tado.RoomControlDefaults) error {
	return s.home.SetRoomDefaults(roomID, d)
}

// SetTemperatureOffset calibrates a valve or sensor. Room identifiers are
// rejected since offsets apply to hardware only.
func (s *Service) SetTemperatureOffset(ctx context.Context, deviceID string, offset float64) error {
	if device.IsRoomDevice(deviceID) || device.IsClimateEntity(deviceID) {
		return fmt.Errorf("%w: %s", tado.ErrRoomDevice, deviceID)
	}
	if err := tado.ValidateOffset(offset); err != nil {
		return err
	}
	if err := s.done(s.api.SetTemperatureOffset(ctx, deviceID, offset)); err != nil {
		return err
	}
	s.log.Info("temperature offset set", slog.String("serial", deviceID), slog.Float64("offset", offset))
	return nil
}

func (s *Service) AddMeterReading(ctx context.Context, reading int, date string) error {
	if err := s.api.AddMeterReading(ctx, reading, date); err != nil {
		return fmt.Errorf("add meter reading: %w", err)
	}
	s.log.Info("meter reading added", slog.Int("reading", reading))
	return nil
}

func (s *Service) SetEIQTariff(ctx context.Context, tariff float64, unit tado.TariffUnit, start, end string) error {
	if err := s.api.SetEIQTariff(ctx, tariff, unit, start, end); err != nil {
		return fmt.Errorf("set energy tariff: %w", err)
	}
	s.log.Info("energy tariff set", slog.Float64("tariff", tariff), slog.String("unit", string(unit)))
	return nil
}

func onTarget(r tado.Room) float64 {
	if r.TargetTemperature != nil {
		return *r.TargetTemperature
	}
	return tado.FallbackTemperature
}

func minutes(m int) time.Duration { return time.Duration(m) * time.Minute }
