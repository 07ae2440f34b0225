package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/Agrid-Dev/tadox/internal/api"
	"github.com/Agrid-Dev/tadox/internal/coordinator"
)

// EnvPrefix marks environment variables that override the config file.
const EnvPrefix = "TADOX_"

// MinScanInterval is the shortest explicit polling interval accepted. It
// matches the Auto-Assist tier interval.
const MinScanInterval = 30 * time.Second

type Config struct {
	StateFile string `koanf:"state_file"`

	Log        LogConfig        `koanf:"log"`
	API        APIConfig        `koanf:"api"`
	DeviceAuth DeviceAuthConfig `koanf:"device_auth"`
	Home       HomeConfig       `koanf:"home"`
	Polling    PollingConfig    `koanf:"polling"`

	Controllers struct {
		HTTP   HTTPConfig   `koanf:"http"`
		MQTT   MQTTConfig   `koanf:"mqtt"`
		MODBUS ModbusConfig `koanf:"modbus"`
	} `koanf:"controllers"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug | info | warn | error
	Format string `koanf:"format"` // text | json
}

type APIConfig struct {
	ClientID  string `koanf:"client_id"`
	AuthURL   string `koanf:"auth_url"`
	TokenURL  string `koanf:"token_url"`
	HopsURL   string `koanf:"hops_url"`
	MyURL     string `koanf:"my_url"`
	EIQURL    string `koanf:"eiq_url"`
	MinderURL string `koanf:"minder_url"`

	Timeout           time.Duration `koanf:"timeout"`
	MinRequestSpacing time.Duration `koanf:"min_request_spacing"`
}

type DeviceAuthConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// HomeConfig selects the home to poll. Zero ID falls back to the state file,
// then to the first home of the account.
type HomeConfig struct {
	ID   int    `koanf:"id"`
	Name string `koanf:"name"`
}

// PollingConfig selects the optional endpoints fetched on each update.
// Weather, mobile devices, air comfort and running times are off by default.
// Each one enabled costs one more request per update, so on the free tier
// (100 requests a day) the tiered interval grows from 45 minutes to fit the
// quota: about 86 minutes with three enabled and 101 minutes with all four.
type PollingConfig struct {
	// ScanInterval overrides the tiered interval when positive. Values need a
	// unit ("90s", "5m"); anything below MinScanInterval is rejected.
	ScanInterval    time.Duration `koanf:"scan_interval"`
	Weather         bool          `koanf:"weather"`
	MobileDevices   bool          `koanf:"mobile_devices"`
	AirComfort      bool          `koanf:"air_comfort"`
	RunningTimes    bool          `koanf:"running_times"`
	FlowTemperature bool          `koanf:"flow_temperature"`
}

type HTTPConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

type MQTTConfig struct {
	Enabled         bool          `koanf:"enabled"`
	BrokerURL       string        `koanf:"broker_url"`
	ClientID        string        `koanf:"client_id"`
	BaseTopic       string        `koanf:"base_topic"`
	QoS             byte          `koanf:"qos"`
	RetainSnapshot  bool          `koanf:"retain_snapshot"`
	PublishInterval time.Duration `koanf:"publish_interval"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
}

type ModbusConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
	UnitID  byte   `koanf:"unit_id"`
}

func Default() Config {
	var cfg Config
	cfg.StateFile = "tadox-state.yaml"
	cfg.Log = LogConfig{Level: "info", Format: "text"}
	cfg.API = APIConfig{
		ClientID:  api.DefaultClientID,
		AuthURL:   api.DefaultAuthURL,
		TokenURL:  api.DefaultTokenURL,
		HopsURL:   api.DefaultHopsURL,
		MyURL:     api.DefaultMyURL,
		EIQURL:    api.DefaultEIQURL,
		MinderURL: api.DefaultMinderURL,
		Timeout:   30 * time.Second,
	}
	cfg.DeviceAuth.Timeout = api.DefaultDeviceAuthLimit
	// Billed optional endpoints stay off so the free tier keeps its
	// 45 minute interval. Flow temperature is not counted against the quota.
	cfg.Polling = PollingConfig{FlowTemperature: true}
	cfg.Controllers.HTTP = HTTPConfig{Enabled: true, Addr: ":8080"}
	cfg.Controllers.MQTT = MQTTConfig{
		BrokerURL:       "tcp://localhost:1883",
		RetainSnapshot:  true,
		PublishInterval: time.Second,
	}
	cfg.Controllers.MODBUS = ModbusConfig{Addr: ":1502", UnitID: 1}
	return cfg
}

// LoadConfig layers defaults, the file at path (if any) and TADOX_*
// environment variables. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := loadFile(k, path); err != nil {
			return Config{}, err
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return envKeyTransform(strings.TrimPrefix(key, EnvPrefix)), value
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var parser koanf.Parser
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config extension %q", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// sections are the config groups addressable as <SECTION>_<KEY>. Controller
// keys take one extra level: CONTROLLERS_<NAME>_<KEY>.
var sections = []string{"log", "api", "device_auth", "home", "polling"}

func envKeyTransform(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(s, "controllers_"); ok {
		name, key, ok := strings.Cut(rest, "_")
		if !ok {
			return s
		}
		return "controllers." + name + "." + key
	}
	for _, sec := range sections {
		if rest, ok := strings.CutPrefix(s, sec+"_"); ok && rest != "" {
			return sec + "." + rest
		}
	}
	return s
}

func (c Config) Validate() error {
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.StateFile == "" {
		return errors.New("state_file is required")
	}
	if c.Home.ID < 0 {
		return fmt.Errorf("home.id must not be negative, got %d", c.Home.ID)
	}
	if c.Polling.ScanInterval < 0 {
		return fmt.Errorf("polling.scan_interval must not be negative, got %s", c.Polling.ScanInterval)
	}
	if c.Polling.ScanInterval > 0 && c.Polling.ScanInterval < MinScanInterval {
		return fmt.Errorf("polling.scan_interval must be at least %s (did you forget a unit?), got %s",
			MinScanInterval, c.Polling.ScanInterval)
	}
	if c.API.MinRequestSpacing < 0 {
		return fmt.Errorf("api.min_request_spacing must not be negative, got %s", c.API.MinRequestSpacing)
	}
	if c.Controllers.MQTT.QoS > 1 {
		return errors.New("controllers.mqtt.qos must be 0 or 1")
	}
	return nil
}

// ClientConfig maps the api section onto the vendor client configuration.
func (c Config) ClientConfig(log *slog.Logger) api.Config {
	return api.Config{
		ClientID:          c.API.ClientID,
		AuthURL:           c.API.AuthURL,
		TokenURL:          c.API.TokenURL,
		HopsURL:           c.API.HopsURL,
		MyURL:             c.API.MyURL,
		EIQURL:            c.API.EIQURL,
		MinderURL:         c.API.MinderURL,
		Timeout:           c.API.Timeout,
		MinRequestSpacing: c.API.MinRequestSpacing,
		Logger:            log,
	}
}

func (c Config) Features() coordinator.Features {
	return coordinator.Features{
		Weather:         c.Polling.Weather,
		MobileDevices:   c.Polling.MobileDevices,
		AirComfort:      c.Polling.AirComfort,
		RunningTimes:    c.Polling.RunningTimes,
		FlowTemperature: c.Polling.FlowTemperature,
	}
}

// NewLogger builds the process logger described by the log section.
func NewLogger(c LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}
