// Package config loads the crazypilot TOML configuration and watches it for
// changes.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mikehamer/crazypilot/control"
	"github.com/mikehamer/crazypilot/crazyradio"
	"github.com/mikehamer/crazypilot/gamepad"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

const DefaultPath = "~/.crazypilot/config.toml"

// Duration reads TOML strings such as "500ms" or "2s".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "config: invalid duration %q", text)
	}
	*d = Duration(parsed)
	return nil
}

type Log struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

type Radio struct {
	Index     int      `toml:"index"`
	Datarates []string `toml:"datarates"`
	Address   string   `toml:"address"`
	Power     string   `toml:"power"`
}

type Discovery struct {
	CopterDelay      Duration `toml:"copter_delay"`
	ControllerPeriod Duration `toml:"controller_period"`
	Signatures       []string `toml:"signatures"`
}

type Control struct {
	Scheme control.Scheme `toml:"scheme"`
}

type Pairing struct {
	ReparkSurvivor bool `toml:"repark_survivor"`
}

type Server struct {
	Listen string `toml:"listen"`
	Static string `toml:"static"`
	// TelemetryRate caps the telemetry messages per second sent to each
	// websocket client.
	TelemetryRate float64 `toml:"telemetry_rate"`
}

type Cache struct {
	Dir string `toml:"dir"`
}

type Config struct {
	Log       Log       `toml:"log"`
	Radio     Radio     `toml:"radio"`
	Discovery Discovery `toml:"discovery"`
	Control   Control   `toml:"control"`
	Pairing   Pairing   `toml:"pairing"`
	Server    Server    `toml:"server"`
	Cache     Cache     `toml:"cache"`
}

func Default() *Config {
	return &Config{
		Log: Log{Level: "info"},
		Radio: Radio{
			Datarates: []string{"250K", "1M", "2M"},
			Address:   "E7E7E7E7E7",
			Power:     "0dBm",
		},
		Discovery: Discovery{
			CopterDelay:      Duration(time.Second),
			ControllerPeriod: Duration(2 * time.Second),
			Signatures:       []string{"1915:7777"},
		},
		Control: Control{Scheme: control.DefaultScheme},
		Server: Server{
			Listen:        "localhost:8080",
			TelemetryRate: 20,
		},
		Cache: Cache{Dir: "~/.crazypilot/cache"},
	}
}

// Load reads the file at path over the defaults. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: expanding path")
	}

	cfg := Default()

	b, err := os.ReadFile(expanded)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "config: reading %s", expanded)
	}

	decoder := toml.NewDecoder(bytes.NewReader(b))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return nil, errors.Wrapf(err, "config: parsing %s", expanded)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path, creating the directory if needed.
func Save(path string, cfg *Config) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return errors.Wrap(err, "config: expanding path")
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0755); err != nil {
		return errors.Wrap(err, "config: creating directory")
	}

	b, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "config: encoding")
	}
	return errors.Wrapf(os.WriteFile(expanded, b, 0644), "config: writing %s", expanded)
}

func (cfg *Config) Validate() error {
	if hclog.LevelFromString(cfg.Log.Level) == hclog.NoLevel {
		return errors.Errorf("config: unknown log level %q", cfg.Log.Level)
	}
	if !cfg.Control.Scheme.Supported() {
		return errors.Wrapf(control.ErrorUnsupportedScheme, "config: scheme %s", cfg.Control.Scheme)
	}
	if _, err := cfg.Datarates(); err != nil {
		return err
	}
	if _, err := cfg.Address(); err != nil {
		return err
	}
	if _, err := crazyradio.ParsePower(cfg.Radio.Power); err != nil {
		return errors.Wrapf(err, "config: radio power %q", cfg.Radio.Power)
	}
	if _, err := cfg.Signatures(); err != nil {
		return err
	}
	if cfg.Discovery.ControllerPeriod <= 0 {
		return errors.New("config: discovery.controller_period must be positive")
	}
	if cfg.Discovery.CopterDelay < 0 {
		return errors.New("config: discovery.copter_delay must not be negative")
	}
	return nil
}

func (cfg *Config) LogLevel() hclog.Level {
	return hclog.LevelFromString(cfg.Log.Level)
}

func (cfg *Config) Datarates() ([]crazyradio.Datarate, error) {
	datarates := make([]crazyradio.Datarate, 0, len(cfg.Radio.Datarates))
	for _, s := range cfg.Radio.Datarates {
		d, err := crazyradio.ParseDatarate(s)
		if err != nil {
			return nil, errors.Wrapf(err, "config: radio datarate %q", s)
		}
		datarates = append(datarates, d)
	}
	return datarates, nil
}

func (cfg *Config) Address() (uint64, error) {
	link, err := crazyradio.ParseLink("radio://0/0/2M/" + cfg.Radio.Address)
	if err != nil {
		return 0, errors.Wrapf(err, "config: radio address %q", cfg.Radio.Address)
	}
	return link.Address, nil
}

func (cfg *Config) Signatures() ([]gamepad.Signature, error) {
	signatures := make([]gamepad.Signature, 0, len(cfg.Discovery.Signatures))
	for _, s := range cfg.Discovery.Signatures {
		sig, err := gamepad.ParseSignature(s)
		if err != nil {
			return nil, errors.Wrapf(err, "config: signature %q", s)
		}
		signatures = append(signatures, sig)
	}
	return signatures, nil
}

// RadioOptions builds the options the radio is opened with.
func (cfg *Config) RadioOptions(logger hclog.Logger) (crazyradio.Options, error) {
	options := crazyradio.DefaultOptions()
	options.Index = cfg.Radio.Index
	options.Logger = logger

	datarates, err := cfg.Datarates()
	if err != nil {
		return options, err
	}
	if len(datarates) > 0 {
		options.ScanDatarates = datarates
	}

	address, err := cfg.Address()
	if err != nil {
		return options, err
	}
	options.ScanAddress = address

	power, err := crazyradio.ParsePower(cfg.Radio.Power)
	if err != nil {
		return options, errors.Wrapf(err, "config: radio power %q", cfg.Radio.Power)
	}
	options.Power = power
	return options, nil
}
