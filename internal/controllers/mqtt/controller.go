package mqttctrl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Agrid-Dev/tadox/internal/controllers/dto"
	"github.com/Agrid-Dev/tadox/internal/ports"
	"github.com/Agrid-Dev/tadox/internal/tado"
)

const commandTimeout = 30 * time.Second

type Config struct {
	// Identity
	HomeID int

	// MQTT connection
	BrokerURL string
	ClientID  string

	// Topics
	BaseTopic string

	// Behavior
	QoS             byte
	RetainSnapshot  bool
	PublishInterval time.Duration

	Username string
	Password string

	Logger *slog.Logger
}

type Controller struct {
	svc ports.HomeService
	cfg Config
	log *slog.Logger

	client mqtt.Client
	ctx    context.Context
}

func New(svc ports.HomeService, cfg Config) (*Controller, error) {
	// ---- defaults ----

	if cfg.BrokerURL == "" {
		cfg.BrokerURL = "tcp://localhost:1883"
	}

	if cfg.HomeID <= 0 {
		return nil, errors.New("mqtt: HomeID is required")
	}
	if cfg.BaseTopic == "" {
		cfg.BaseTopic = fmt.Sprintf("tadox/%d", cfg.HomeID)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("tadox-%d", cfg.HomeID)
	}
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = 1 * time.Second
	}
	if cfg.QoS > 1 {
		return nil, errors.New("mqtt: QoS must be 0 or 1")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		svc: svc,
		cfg: cfg,
		log: cfg.Logger.With(slog.String("controller", "mqtt")),
		ctx: context.Background(),
	}, nil
}

func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.BrokerURL).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetWill(c.topic("availability"), "offline", c.cfg.QoS, true)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	// Subscribe when connected/reconnected.
	opts.OnConnect = func(cl mqtt.Client) {
		filters := map[string]byte{
			c.topic("set/+"):           c.cfg.QoS,
			c.topic("rooms/+/set/+"):   c.cfg.QoS,
			c.topic("devices/+/set/+"): c.cfg.QoS,
		}
		token := cl.SubscribeMultiple(filters, c.onMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			c.log.Error("subscribe failed", slog.Any("error", err))
		}
		cl.Publish(c.topic("availability"), c.cfg.QoS, true, "online")
	}

	c.client = mqtt.NewClient(opts)
	tok := c.client.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	// Publish loop: publish snapshot on interval, and only when changed.
	ticker := time.NewTicker(c.cfg.PublishInterval)
	defer ticker.Stop()

	var last dto.Snapshot
	first := true

	for {
		cur, err := c.svc.Get()
		if err == nil {
			view := dto.FromSnapshot(cur)
			if first || !reflect.DeepEqual(view, last) {
				c.publish(view, last, first)
				last = view
				first = false
			}
		}

		select {
		case <-ctx.Done():
			c.client.Publish(c.topic("availability"), c.cfg.QoS, true, "offline").Wait()
			c.client.Disconnect(250)
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// publish sends the home snapshot and the state of every room that changed
// since prev.
func (c *Controller) publish(view, prev dto.Snapshot, all bool) {
	c.publishJSON(c.topic("snapshot"), view)

	before := make(map[int]dto.Room, len(prev.Rooms))
	for _, r := range prev.Rooms {
		before[r.ID] = r
	}
	for _, r := range view.Rooms {
		if old, ok := before[r.ID]; all || !ok || !reflect.DeepEqual(old, r) {
			c.publishJSON(c.topic("rooms/"+strconv.Itoa(r.ID)+"/state"), r)
		}
	}
}

func (c *Controller) publishJSON(topic string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		c.log.Error("encode payload", slog.String("topic", topic), slog.Any("error", err))
		return
	}
	c.client.Publish(topic, c.cfg.QoS, c.cfg.RetainSnapshot, b)
}

// Command payload format: {"value": ...}
type valueReq[T any] struct {
	Value *T `json:"value"`
}

type timerValue struct {
	Temperature float64 `json:"temperature"`
	Termination string  `json:"termination"`
	Minutes     int     `json:"minutes"`
}

// onMessage dispatches:
//
//	<base>/set/<field>
//	<base>/rooms/<id>/set/<field>
//	<base>/devices/<serial>/set/<field>
func (c *Controller) onMessage(_ mqtt.Client, msg mqtt.Message) {
	rest, ok := strings.CutPrefix(msg.Topic(), strings.TrimRight(c.cfg.BaseTopic, "/")+"/")
	if !ok {
		return
	}
	parts := strings.Split(rest, "/")

	ctx, cancel := context.WithTimeout(c.ctx, commandTimeout)
	defer cancel()

	var err error
	switch {
	case len(parts) == 2 && parts[0] == "set":
		err = c.homeCommand(ctx, parts[1], msg.Payload())
	case len(parts) == 4 && parts[0] == "rooms" && parts[2] == "set":
		id, convErr := strconv.Atoi(parts[1])
		if convErr != nil || id <= 0 {
			err = fmt.Errorf("invalid room id %q", parts[1])
			break
		}
		err = c.roomCommand(ctx, id, parts[3], msg.Payload())
	case len(parts) == 4 && parts[0] == "devices" && parts[2] == "set":
		err = c.deviceCommand(ctx, parts[1], parts[3], msg.Payload())
	default:
		return
	}
	if err != nil {
		c.log.Warn("command rejected", slog.String("topic", msg.Topic()), slog.Any("error", err))
	}
}

func (c *Controller) homeCommand(ctx context.Context, field string, payload []byte) error {
	switch field {
	case "presence":
		s, err := decodeValueStrict[string](payload)
		if err != nil {
			return err
		}
		m, err := tado.ParsePresenceMode(s)
		if err != nil {
			return err
		}
		return c.svc.SetPresenceMode(ctx, m)

	case "max_flow_temperature":
		v, err := decodeValueStrict[int](payload)
		if err != nil {
			return err
		}
		return c.svc.SetMaxFlowTemperature(ctx, v)

	case "boost_all":
		return c.press(payload, func() error { return c.svc.BoostAll(ctx) })
	case "all_off":
		return c.press(payload, func() error { return c.svc.AllOff(ctx) })
	case "resume_schedules":
		return c.press(payload, func() error { return c.svc.ResumeAllSchedules(ctx) })
	case "refresh":
		return c.press(payload, func() error {
			c.svc.RequestRefresh()
			return nil
		})
	}
	return fmt.Errorf("unknown field %q", field)
}

func (c *Controller) roomCommand(ctx context.Context, id int, field string, payload []byte) error {
	switch field {
	case "temperature":
		v, err := decodeValueStrict[float64](payload)
		if err != nil {
			return err
		}
		return c.svc.SetTemperature(ctx, id, v)

	case "timer":
		v, err := decodeValueStrict[timerValue](payload)
		if err != nil {
			return err
		}
		var t tado.Termination
		if v.Termination != "" {
			if t, err = tado.ParseTermination(v.Termination); err != nil {
				return err
			}
		}
		return c.svc.SetClimateTimer(ctx, id, v.Temperature, t, v.Minutes)

	case "hvac_mode":
		s, err := decodeValueStrict[string](payload)
		if err != nil {
			return err
		}
		m, err := tado.ParseHVACMode(s)
		if err != nil {
			return err
		}
		return c.svc.SetHVACMode(ctx, id, m)

	case "preset":
		s, err := decodeValueStrict[string](payload)
		if err != nil {
			return err
		}
		p, err := tado.ParsePreset(s)
		if err != nil {
			return err
		}
		return c.svc.SetPreset(ctx, id, p)

	case "power":
		on, err := decodeValueStrict[bool](payload)
		if err != nil {
			return err
		}
		if on {
			return c.svc.TurnOn(ctx, id)
		}
		return c.svc.TurnOff(ctx, id)

	case "boost":
		return c.press(payload, func() error { return c.svc.BoostRoom(ctx, id) })

	case "open_window_detection":
		on, err := decodeValueStrict[bool](payload)
		if err != nil {
			return err
		}
		return c.svc.SetOpenWindowDetection(ctx, id, on)

	case "default_termination":
		s, err := decodeValueStrict[string](payload)
		if err != nil {
			return err
		}
		t, err := tado.ParseTermination(s)
		if err != nil {
			return err
		}
		return c.svc.SetRoomDefaults(id, c.svc.RoomDefaults(id).With(tado.RoomControlDefaults{Termination: t}))

	case "default_duration":
		v, err := decodeValueStrict[int](payload)
		if err != nil {
			return err
		}
		if err := tado.ValidateTimerMinutes(v); err != nil {
			return err
		}
		return c.svc.SetRoomDefaults(id, c.svc.RoomDefaults(id).With(tado.RoomControlDefaults{DurationMinutes: v}))
	}
	return fmt.Errorf("unknown field %q", field)
}

func (c *Controller) deviceCommand(ctx context.Context, serial, field string, payload []byte) error {
	switch field {
	case "child_lock":
		on, err := decodeValueStrict[bool](payload)
		if err != nil {
			return err
		}
		return c.svc.SetChildLock(ctx, serial, on)

	case "temperature_offset":
		v, err := decodeValueStrict[float64](payload)
		if err != nil {
			return err
		}
		return c.svc.SetTemperatureOffset(ctx, serial, v)
	}
	return fmt.Errorf("unknown field %q", field)
}

// press runs a button action for {"value": true}; false is a no-op.
func (c *Controller) press(payload []byte, fn func() error) error {
	v, err := decodeValueStrict[bool](payload)
	if err != nil {
		return err
	}
	if !v {
		return nil
	}
	return fn()
}

func (c *Controller) topic(suffix string) string {
	return strings.TrimRight(c.cfg.BaseTopic, "/") + "/" + suffix
}

func decodeValueStrict[T any](b []byte) (T, error) {
	var zero T
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var req valueReq[T]
	if err := dec.Decode(&req); err != nil {
		return zero, err
	}
	if req.Value == nil {
		return zero, errors.New("missing field 'value'")
	}
	return *req.Value, nil
}
