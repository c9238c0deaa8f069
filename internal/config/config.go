// Package config loads the daemon configuration from YAML, environment
// variables (OPERANT_ prefix) and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/operant-box/internal/clock"
	"github.com/sweeney/operant-box/internal/gpio"
	"github.com/sweeney/operant-box/internal/laser"
	"github.com/sweeney/operant-box/internal/link"
	"github.com/sweeney/operant-box/internal/pattern"
	"github.com/sweeney/operant-box/internal/session"
)

// EnvPrefix prefixes every environment override, e.g. OPERANT_MQTT_BROKER.
const EnvPrefix = "OPERANT"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the complete daemon configuration.
type Config struct {
	Box         string            `yaml:"box" mapstructure:"box"`
	PollMs      uint32            `yaml:"poll_ms" mapstructure:"poll_ms"`
	DebounceMs  uint32            `yaml:"debounce_ms" mapstructure:"debounce_ms"`
	Cue         CueConfig         `yaml:"cue" mapstructure:"cue"`
	Pump        PumpConfig        `yaml:"pump" mapstructure:"pump"`
	Laser       LaserConfig       `yaml:"laser" mapstructure:"laser"`
	Levers      []LeverConfig     `yaml:"levers" mapstructure:"levers"`
	Outputs     OutputsConfig     `yaml:"outputs" mapstructure:"outputs"`
	GPIO        GPIOConfig        `yaml:"gpio" mapstructure:"gpio"`
	Contingency ContingencyConfig `yaml:"contingency" mapstructure:"contingency"`
	Limits      LimitsConfig      `yaml:"limits" mapstructure:"limits"`
	Link        LinkConfig        `yaml:"link" mapstructure:"link"`
	Serial      SerialConfig      `yaml:"serial" mapstructure:"serial"`
	MQTT        MQTTConfig        `yaml:"mqtt" mapstructure:"mqtt"`
	HTTP        HTTPConfig        `yaml:"http" mapstructure:"http"`
	Discovery   DiscoveryConfig   `yaml:"discovery" mapstructure:"discovery"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// CueConfig configures the tone/light cue.
type CueConfig struct {
	DurationMs uint32 `yaml:"duration_ms" mapstructure:"duration_ms"`
}

// PumpConfig configures the reward pump.
type PumpConfig struct {
	DurationMs uint32 `yaml:"duration_ms" mapstructure:"duration_ms"`
}

// LaserConfig configures stimulation.
type LaserConfig struct {
	Steps     []pattern.Step `yaml:"steps" mapstructure:"steps"`
	Repeat    bool           `yaml:"repeat" mapstructure:"repeat"`
	Retrigger string         `yaml:"retrigger" mapstructure:"retrigger"`
	Mode      string         `yaml:"mode" mapstructure:"mode"`
}

// LeverConfig binds a named lever to a GPIO input.
type LeverConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	Pin  int    `yaml:"pin" mapstructure:"pin"`
	Role string `yaml:"role" mapstructure:"role"`
}

// OutputsConfig holds actuator output pins.
type OutputsConfig struct {
	Cue   int `yaml:"cue" mapstructure:"cue"`
	Pump  int `yaml:"pump" mapstructure:"pump"`
	Laser int `yaml:"laser" mapstructure:"laser"`
}

// GPIOConfig selects the chip and input polarity.
type GPIOConfig struct {
	Chip      string `yaml:"chip" mapstructure:"chip"`
	ActiveLow bool   `yaml:"active_low" mapstructure:"active_low"`
}

// ActionsConfig selects which actuators a reward fires.
type ActionsConfig struct {
	Cue   bool `yaml:"cue" mapstructure:"cue"`
	Pump  bool `yaml:"pump" mapstructure:"pump"`
	Laser bool `yaml:"laser" mapstructure:"laser"`
}

// ContingencyConfig is the response requirement.
type ContingencyConfig struct {
	Trigger   string        `yaml:"trigger" mapstructure:"trigger"`
	MinHoldMs uint32        `yaml:"min_hold_ms" mapstructure:"min_hold_ms"`
	Ratio     int           `yaml:"ratio" mapstructure:"ratio"`
	TimeoutMs uint32        `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	Actions   ActionsConfig `yaml:"actions" mapstructure:"actions"`
}

// LimitsConfig ends sessions automatically; zero disables.
type LimitsConfig struct {
	MaxDurationMs uint32 `yaml:"max_duration_ms" mapstructure:"max_duration_ms"`
	MaxRewards    int    `yaml:"max_rewards" mapstructure:"max_rewards"`
}

// LinkConfig configures the heartbeat.
type LinkConfig struct {
	PingIntervalMs uint32 `yaml:"ping_interval_ms" mapstructure:"ping_interval_ms"`
	MaxMissed      int    `yaml:"max_missed" mapstructure:"max_missed"`
}

// SerialConfig configures the host serial port. An empty device disables
// the host link.
type SerialConfig struct {
	Device string `yaml:"device" mapstructure:"device"`
	Baud   int    `yaml:"baud" mapstructure:"baud"`
}

// MQTTConfig configures event publishing. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker     string `yaml:"broker" mapstructure:"broker"`
	BufferSize int    `yaml:"buffer_size" mapstructure:"buffer_size"`
}

// HTTPConfig configures the status server. An empty address disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// DiscoveryConfig configures the UDP announcer.
type DiscoveryConfig struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	Port       int    `yaml:"port" mapstructure:"port"`
	IntervalMs uint32 `yaml:"interval_ms" mapstructure:"interval_ms"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Box:        "box1",
		PollMs:     1,
		DebounceMs: 20,
		Cue:        CueConfig{DurationMs: 2000},
		Pump:       PumpConfig{DurationMs: 500},
		Laser: LaserConfig{
			Steps:     []pattern.Step{{On: 10, Off: 40}},
			Repeat:    false,
			Retrigger: laser.RetriggerIgnore.String(),
			Mode:      laser.ModeContingent.String(),
		},
		Levers: []LeverConfig{
			{Name: "left", Pin: gpio.PinLeverLeft, Role: "active"},
			{Name: "right", Pin: gpio.PinLeverRight, Role: "inactive"},
		},
		Outputs: OutputsConfig{Cue: gpio.PinCue, Pump: gpio.PinPump, Laser: gpio.PinLaser},
		GPIO:    GPIOConfig{Chip: gpio.DefaultChip, ActiveLow: true},
		Contingency: ContingencyConfig{
			Trigger: "press",
			Ratio:   1,
			Actions: ActionsConfig{Cue: true, Pump: true},
		},
		Link: LinkConfig{PingIntervalMs: 1000, MaxMissed: 3},
		Serial: SerialConfig{
			Device: "",
			Baud:   115200,
		},
		MQTT:      MQTTConfig{BufferSize: 1000},
		HTTP:      HTTPConfig{Addr: ":8080"},
		Discovery: DiscoveryConfig{Enabled: true, Port: 7899, IntervalMs: 5000},
		Log:       LogConfig{Level: "info", Format: "console"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("box", d.Box)
	v.SetDefault("poll_ms", d.PollMs)
	v.SetDefault("debounce_ms", d.DebounceMs)
	v.SetDefault("cue.duration_ms", d.Cue.DurationMs)
	v.SetDefault("pump.duration_ms", d.Pump.DurationMs)
	v.SetDefault("laser.steps", d.Laser.Steps)
	v.SetDefault("laser.repeat", d.Laser.Repeat)
	v.SetDefault("laser.retrigger", d.Laser.Retrigger)
	v.SetDefault("laser.mode", d.Laser.Mode)
	v.SetDefault("levers", d.Levers)
	v.SetDefault("outputs.cue", d.Outputs.Cue)
	v.SetDefault("outputs.pump", d.Outputs.Pump)
	v.SetDefault("outputs.laser", d.Outputs.Laser)
	v.SetDefault("gpio.chip", d.GPIO.Chip)
	v.SetDefault("gpio.active_low", d.GPIO.ActiveLow)
	v.SetDefault("contingency.trigger", d.Contingency.Trigger)
	v.SetDefault("contingency.min_hold_ms", d.Contingency.MinHoldMs)
	v.SetDefault("contingency.ratio", d.Contingency.Ratio)
	v.SetDefault("contingency.timeout_ms", d.Contingency.TimeoutMs)
	v.SetDefault("contingency.actions.cue", d.Contingency.Actions.Cue)
	v.SetDefault("contingency.actions.pump", d.Contingency.Actions.Pump)
	v.SetDefault("contingency.actions.laser", d.Contingency.Actions.Laser)
	v.SetDefault("limits.max_duration_ms", d.Limits.MaxDurationMs)
	v.SetDefault("limits.max_rewards", d.Limits.MaxRewards)
	v.SetDefault("link.ping_interval_ms", d.Link.PingIntervalMs)
	v.SetDefault("link.max_missed", d.Link.MaxMissed)
	v.SetDefault("serial.device", d.Serial.Device)
	v.SetDefault("serial.baud", d.Serial.Baud)
	v.SetDefault("mqtt.broker", d.MQTT.Broker)
	v.SetDefault("mqtt.buffer_size", d.MQTT.BufferSize)
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("discovery.enabled", d.Discovery.Enabled)
	v.SetDefault("discovery.port", d.Discovery.Port)
	v.SetDefault("discovery.interval_ms", d.Discovery.IntervalMs)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load reads configuration from path (or operant.yaml in the working
// directory and /etc/operant-box when path is empty), then applies
// environment overrides. A missing default file is not an error.
func Load(path string) (Config, error) {
	return load(viper.New(), path)
}

// LoadWith is Load using a caller-supplied viper, so command-line flags
// bound to it take precedence.
func LoadWith(v *viper.Viper, path string) (Config, error) {
	return load(v, path)
}

func load(v *viper.Viper, path string) (Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("operant")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/operant-box")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem that does not depend on the session
// rules; Session reports the rest.
func (c Config) Validate() error {
	var errs []error
	if c.Box == "" {
		errs = append(errs, errors.New("box name required"))
	} else if strings.ContainsAny(c.Box, "/#+ ") {
		errs = append(errs, fmt.Errorf("box name %q must not contain '/', '#', '+' or spaces", c.Box))
	}
	if c.PollMs == 0 {
		errs = append(errs, errors.New("poll_ms must be positive"))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	if err := c.Pins().Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Session(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Pins returns the GPIO assignment.
func (c Config) Pins() gpio.Pins {
	p := gpio.Pins{
		Chip:      c.GPIO.Chip,
		Inputs:    make(map[string]int, len(c.Levers)),
		ActiveLow: c.GPIO.ActiveLow,
		Outputs: map[string]int{
			session.ChannelCue:   c.Outputs.Cue,
			session.ChannelPump:  c.Outputs.Pump,
			session.ChannelLaser: c.Outputs.Laser,
		},
	}
	for _, l := range c.Levers {
		p.Inputs[LeverChannel(l.Name)] = l.Pin
	}
	return p
}

// LeverChannel is the input channel name for a lever.
func LeverChannel(name string) string {
	return "lever_" + name
}

// Session converts the configuration into orchestrator settings.
func (c Config) Session() (session.Config, error) {
	var errs []error

	trigger, err := session.ParseTrigger(c.Contingency.Trigger)
	if err != nil {
		errs = append(errs, err)
	}
	retrigger, err := laser.ParseRetrigger(c.Laser.Retrigger)
	if err != nil {
		errs = append(errs, err)
	}
	mode, err := laser.ParseMode(c.Laser.Mode)
	if err != nil {
		errs = append(errs, err)
	}

	levers := make([]session.LeverConfig, 0, len(c.Levers))
	for _, l := range c.Levers {
		role, err := session.ParseRole(l.Role)
		if err != nil {
			errs = append(errs, fmt.Errorf("lever %q: %w", l.Name, err))
		}
		levers = append(levers, session.LeverConfig{
			Name:    l.Name,
			Channel: LeverChannel(l.Name),
			Role:    role,
		})
	}

	sc := session.Config{
		Debounce:       clock.Millis(c.DebounceMs),
		CueDuration:    clock.Millis(c.Cue.DurationMs),
		PumpDuration:   clock.Millis(c.Pump.DurationMs),
		Laser:          pattern.Train{Steps: c.Laser.Steps, Repeat: c.Laser.Repeat},
		LaserRetrigger: retrigger,
		LaserMode:      mode,
		Levers:         levers,
		Contingency: session.Contingency{
			Trigger: trigger,
			MinHold: clock.Millis(c.Contingency.MinHoldMs),
			Ratio:   c.Contingency.Ratio,
			Timeout: clock.Millis(c.Contingency.TimeoutMs),
			Actions: session.Actions{
				Cue:   c.Contingency.Actions.Cue,
				Pump:  c.Contingency.Actions.Pump,
				Laser: c.Contingency.Actions.Laser,
			},
		},
		Limits: session.Limits{
			MaxDuration: clock.Millis(c.Limits.MaxDurationMs),
			MaxRewards:  c.Limits.MaxRewards,
		},
		Link: link.Config{
			PingInterval: clock.Millis(c.Link.PingIntervalMs),
			MaxMissed:    c.Link.MaxMissed,
		},
	}
	if len(errs) == 0 {
		if err := sc.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return session.Config{}, err
	}
	return sc, nil
}

// YAML renders the configuration as YAML.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
