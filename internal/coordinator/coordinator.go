package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Agrid-Dev/tadox/internal/api"
	"github.com/Agrid-Dev/tadox/internal/tado"
)

// API is the part of the vendor client the coordinator polls.
type API interface {
	SetHomeID(id int)
	Stats() api.Stats

	GetRooms(ctx context.Context) ([]api.Room, error)
	GetRoomsAndDevices(ctx context.Context) (api.RoomsAndDevices, error)
	GetHomeState(ctx context.Context) (api.HomeState, error)
	GetWeather(ctx context.Context) (api.Weather, error)
	GetMobileDevices(ctx context.Context) ([]api.MobileDevice, error)
	GetAirComfort(ctx context.Context) (api.AirComfort, error)
	GetRunningTimes(ctx context.Context, from, to string) (api.RunningTimes, error)
	GetFlowTemperatureOptimization(ctx context.Context) (*api.FlowTemperatureOptimization, error)
}

// State is the coordinator data worth keeping across restarts.
type State struct {
	API          tado.APIStats
	RoomDefaults map[int]tado.RoomControlDefaults
}

type Config struct {
	HomeID   int
	HomeName string

	// ScanInterval overrides the tiered interval when positive.
	ScanInterval time.Duration
	Features     Features

	Logger *slog.Logger
	// Persist is called after every successful update and after room
	// defaults change.
	Persist func(State)
	Now     func() time.Time
}

// Coordinator polls the vendor API and keeps the latest snapshot of one home.
type Coordinator struct {
	api API
	cfg Config
	log *slog.Logger
	now func() time.Time

	refreshMu sync.Mutex // one refresh at a time

	mu             sync.RWMutex
	snap           *tado.Snapshot
	interval       time.Duration
	defaults       map[int]tado.RoomControlDefaults
	suspendedUntil time.Time
	subs           map[int]func(tado.Snapshot)
	nextSub        int

	kick   chan struct{}
	retune chan struct{}
}

func New(client API, cfg Config) (*Coordinator, error) {
	if client == nil {
		return nil, errors.New("coordinator: api client is required")
	}
	if cfg.HomeID <= 0 {
		return nil, errors.New("coordinator: HomeID is required")
	}
	if cfg.HomeName == "" {
		cfg.HomeName = fmt.Sprintf("Home %d", cfg.HomeID)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	client.SetHomeID(cfg.HomeID)

	c := &Coordinator{
		api:      client,
		cfg:      cfg,
		log:      cfg.Logger.With(slog.Int("home_id", cfg.HomeID)),
		now:      cfg.Now,
		interval: cfg.ScanInterval,
		defaults: make(map[int]tado.RoomControlDefaults),
		subs:     make(map[int]func(tado.Snapshot)),
		kick:     make(chan struct{}, 1),
		retune:   make(chan struct{}, 1),
	}

	tier := "free"
	if client.Stats().HasAutoAssist {
		tier = "auto-assist"
	}
	c.log.Info("coordinator initialized",
		slog.Duration("interval", c.ScanInterval()),
		slog.String("tier", tier),
		slog.Bool("weather", cfg.Features.Weather),
		slog.Bool("mobile_devices", cfg.Features.MobileDevices),
		slog.Bool("air_comfort", cfg.Features.AirComfort),
		slog.Bool("running_times", cfg.Features.RunningTimes),
		slog.Bool("flow_temperature", cfg.Features.FlowTemperature),
	)
	return c, nil
}

func (c *Coordinator) HomeID() int { return c.cfg.HomeID }

// CallsPerUpdate is the number of quota-billed requests one update costs.
func (c *Coordinator) CallsPerUpdate() int { return c.cfg.Features.CallsPerUpdate() }

// ScanInterval is the polling interval currently in effect.
func (c *Coordinator) ScanInterval() time.Duration {
	c.mu.RLock()
	explicit := c.interval
	c.mu.RUnlock()
	return IntervalFor(explicit, c.api.Stats(), c.cfg.Features)
}

// UpdateScanInterval changes the polling interval at runtime. Zero restores
// the tiered interval.
func (c *Coordinator) UpdateScanInterval(d time.Duration) {
	c.mu.Lock()
	c.interval = max(d, 0)
	c.mu.Unlock()
	select {
	case c.retune <- struct{}{}:
	default:
	}
	c.log.Info("scan interval updated", slog.Duration("interval", c.ScanInterval()))
}

// Snapshot returns the latest snapshot. ok is false before the first update.
func (c *Coordinator) Snapshot() (tado.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return tado.Snapshot{}, false
	}
	return *c.snap, true
}

// Subscribe registers fn to receive every new snapshot. The returned function
// removes the subscription.
func (c *Coordinator) Subscribe(fn func(tado.Snapshot)) (cancel func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// RequestRefresh asks Run for an update. Requests made while one is pending
// are merged.
func (c *Coordinator) RequestRefresh() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Run refreshes once, then on every interval tick or refresh request until
// ctx is done. It returns ErrReauthRequired when the credentials are rejected.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.poll(ctx); err != nil {
		return err
	}
	timer := time.NewTimer(c.ScanInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.retune:
			timer.Reset(c.ScanInterval())
		case <-c.kick:
			if err := c.poll(ctx); err != nil {
				return err
			}
			timer.Reset(c.ScanInterval())
		case <-timer.C:
			if err := c.poll(ctx); err != nil {
				return err
			}
			timer.Reset(c.ScanInterval())
		}
	}
}

// poll refreshes and only reports errors that must stop the loop.
func (c *Coordinator) poll(ctx context.Context) error {
	_, err := c.Refresh(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrReauthRequired):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		c.log.Error("update failed", slog.Any("error", err))
		return nil
	}
}

// Refresh fetches every endpoint and replaces the snapshot. While the API is
// rate limited it returns the previous snapshot flagged as such without
// sending requests.
func (c *Coordinator) Refresh(ctx context.Context) (tado.Snapshot, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	log := c.log.With(slog.String("refresh_id", uuid.NewString()))
	now := c.now()

	c.mu.RLock()
	until := c.suspendedUntil
	c.mu.RUnlock()
	if now.Before(until) {
		log.Debug("skipping update while rate limited", slog.Time("reset", until))
		return c.markRateLimited(until), nil
	}

	start := now
	s, err := c.fetch(ctx, log)
	if err != nil {
		if reset, ok := api.IsRateLimited(err); ok {
			log.Warn("rate limit hit, suspending api calls and serving cached data", slog.Time("reset", reset))
			return c.markRateLimited(reset), nil
		}
		if api.IsAuthError(err) {
			log.Error("authentication failed", slog.Any("error", err))
			return tado.Snapshot{}, fmt.Errorf("%w: %w", ErrReauthRequired, err)
		}
		return tado.Snapshot{}, fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}

	s.API = c.api.Stats()
	s.UpdatedAt = c.now()

	c.mu.Lock()
	c.snap = &s
	c.suspendedUntil = time.Time{}
	c.mu.Unlock()

	log.Debug("update complete",
		slog.Int("rooms", len(s.Rooms)),
		slog.Int("devices", len(s.Devices)),
		slog.Int("calls_today", s.API.CallsToday),
		slog.Duration("took", c.now().Sub(start)),
	)

	c.persist()
	c.publish(s)
	return s, nil
}

func (c *Coordinator) fetch(ctx context.Context, log *slog.Logger) (tado.Snapshot, error) {
	f := c.cfg.Features

	rooms, err := c.api.GetRooms(ctx)
	if err != nil {
		return tado.Snapshot{}, fmt.Errorf("get rooms: %w", err)
	}
	rd, err := c.api.GetRoomsAndDevices(ctx)
	if err != nil {
		return tado.Snapshot{}, fmt.Errorf("get rooms and devices: %w", err)
	}
	st, err := c.api.GetHomeState(ctx)
	if err != nil {
		return tado.Snapshot{}, fmt.Errorf("get home state: %w", err)
	}

	var weather *tado.Weather
	if f.Weather {
		w, err := c.api.GetWeather(ctx)
		if err != nil {
			return tado.Snapshot{}, fmt.Errorf("get weather: %w", err)
		}
		weather = convertWeather(w)
	}

	var mobiles []api.MobileDevice
	if f.MobileDevices {
		if mobiles, err = c.api.GetMobileDevices(ctx); err != nil {
			return tado.Snapshot{}, fmt.Errorf("get mobile devices: %w", err)
		}
	}

	s := buildSnapshot(c.cfg.HomeID, c.cfg.HomeName, rooms, rd, st)
	s.Weather = weather
	applyMobileDevices(&s, mobiles)

	// The remaining endpoints are not available on every account.
	if f.RunningTimes {
		today := tado.FormatDate(c.now())
		if rt, err := c.api.GetRunningTimes(ctx, today, today); err != nil {
			log.Warn("failed to fetch running times", slog.Any("error", err))
		} else {
			applyRunningTimes(&s, rt)
		}
	}
	if f.AirComfort {
		if ac, err := c.api.GetAirComfort(ctx); err != nil {
			log.Warn("failed to fetch air comfort", slog.Any("error", err))
		} else {
			applyAirComfort(&s, ac)
		}
	}
	if f.FlowTemperature {
		if flow, err := c.api.GetFlowTemperatureOptimization(ctx); err != nil {
			log.Debug("flow temperature optimization not available", slog.Any("error", err))
		} else {
			s.Flow = convertFlow(flow)
		}
	}
	return s, nil
}

// markRateLimited flags the cached snapshot, or an empty one, and suspends
// polling until reset.
func (c *Coordinator) markRateLimited(reset time.Time) tado.Snapshot {
	c.mu.Lock()
	c.suspendedUntil = reset
	var s tado.Snapshot
	if c.snap != nil {
		s = *c.snap
	} else {
		s = tado.Snapshot{
			HomeID:        c.cfg.HomeID,
			HomeName:      c.cfg.HomeName,
			Rooms:         map[int]tado.Room{},
			Devices:       map[string]tado.Device{},
			MobileDevices: map[int]tado.MobileDevice{},
			AirComfort:    map[int]tado.AirComfort{},
		}
	}
	s.RateLimited = true
	s.RateLimitReset = reset
	s.API = c.api.Stats()
	c.snap = &s
	c.mu.Unlock()

	c.publish(s)
	return s
}

func (c *Coordinator) publish(s tado.Snapshot) {
	c.mu.RLock()
	subs := make([]func(tado.Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.RUnlock()
	for _, fn := range subs {
		fn(s)
	}
}

func (c *Coordinator) persist() {
	if c.cfg.Persist == nil {
		return
	}
	c.mu.RLock()
	st := State{API: c.api.Stats(), RoomDefaults: maps.Clone(c.defaults)}
	c.mu.RUnlock()
	c.cfg.Persist(st)
}

// RoomDefaults returns the termination and duration applied when a room
// temperature is set without explicit ones.
func (c *Coordinator) RoomDefaults(roomID int) tado.RoomControlDefaults {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if d, ok := c.defaults[roomID]; ok {
		return d
	}
	return tado.DefaultRoomControl()
}

func (c *Coordinator) SetRoomDefaults(roomID int, d tado.RoomControlDefaults) error {
	if !d.Termination.Valid() {
		return fmt.Errorf("%w: %q", tado.ErrInvalidTermination, d.Termination)
	}
	if err := tado.ValidateTimerMinutes(d.DurationMinutes); err != nil {
		return err
	}
	c.mu.Lock()
	c.defaults[roomID] = d
	c.mu.Unlock()
	c.persist()
	return nil
}

// RestoreRoomDefaults seeds defaults loaded from disk. Invalid entries are skipped.
func (c *Coordinator) RestoreRoomDefaults(defaults map[int]tado.RoomControlDefaults) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, d := range defaults {
		if !d.Termination.Valid() || tado.ValidateTimerMinutes(d.DurationMinutes) != nil {
			c.log.Warn("ignoring invalid room defaults", slog.Int("room_id", id))
			continue
		}
		c.defaults[id] = d
	}
}
