package config

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"

	"github.com/wippyai/hotswap/engine"
	"github.com/wippyai/hotswap/errors"
	"github.com/wippyai/hotswap/host"
	"github.com/wippyai/hotswap/loader"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "HOTSWAP_"

// Config is the complete runtime configuration. Values are layered:
// defaults, then the TOML file, then the environment, then CLI flags.
type Config struct {
	Dir           string        `env:"DIR"`
	Name          string        `env:"NAME"`
	Profile       string        `env:"PROFILE"`
	CacheDir      string        `env:"CACHE_DIR"`
	LogLevel      string        `env:"LOG_LEVEL"`
	LogFile       string        `env:"LOG_FILE"`
	TraceEndpoint string        `env:"OTLP_ENDPOINT"`
	PollInterval  time.Duration `env:"POLL_INTERVAL"`
	SettleDelay   time.Duration `env:"SETTLE_DELAY"`
	LoadTimeout   time.Duration `env:"LOAD_TIMEOUT"`
	CallTimeout   time.Duration `env:"CALL_TIMEOUT"`
	ReadAttempts  uint          `env:"READ_ATTEMPTS"`
	Interpreter   bool          `env:"INTERPRETER"`
	Headless      bool          `env:"HEADLESS"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Dir:          "build",
		Name:         "counter",
		LogLevel:     "info",
		PollInterval: host.DefaultPollInterval,
		SettleDelay:  loader.DefaultSettleDelay,
		LoadTimeout:  loader.DefaultLoadTimeout,
		ReadAttempts: loader.DefaultReadAttempts,
	}
}

type fileConfig struct {
	Dir           string `toml:"dir"`
	Name          string `toml:"name"`
	Profile       string `toml:"profile"`
	CacheDir      string `toml:"cache_dir"`
	LogLevel      string `toml:"log_level"`
	LogFile       string `toml:"log_file"`
	TraceEndpoint string `toml:"otlp_endpoint"`
	PollInterval  string `toml:"poll_interval"`
	SettleDelay   string `toml:"settle_delay"`
	LoadTimeout   string `toml:"load_timeout"`
	CallTimeout   string `toml:"call_timeout"`
	ReadAttempts  uint   `toml:"read_attempts"`
	Interpreter   bool   `toml:"interpreter"`
	Headless      bool   `toml:"headless"`
}

// Load returns the defaults overlaid with the file at path (when path is
// not empty) and the process environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := LoadFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg, nil); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile overlays the keys defined in the TOML file at path onto cfg.
// Keys absent from the file keep their current values.
func LoadFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "load "+path)
	}
	return apply(cfg, raw, meta)
}

// Decode overlays TOML text onto cfg like LoadFile.
func Decode(cfg *Config, data string) error {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "decode config")
	}
	return apply(cfg, raw, meta)
}

func apply(cfg *Config, raw fileConfig, meta toml.MetaData) error {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return errors.InvalidInput(errors.PhaseConfig, "unknown keys: "+strings.Join(keys, ", "))
	}

	strs := []struct {
		key string
		dst *string
		val string
	}{
		{"dir", &cfg.Dir, raw.Dir},
		{"name", &cfg.Name, raw.Name},
		{"profile", &cfg.Profile, raw.Profile},
		{"cache_dir", &cfg.CacheDir, raw.CacheDir},
		{"log_level", &cfg.LogLevel, raw.LogLevel},
		{"log_file", &cfg.LogFile, raw.LogFile},
		{"otlp_endpoint", &cfg.TraceEndpoint, raw.TraceEndpoint},
	}
	for _, s := range strs {
		if meta.IsDefined(s.key) {
			*s.dst = strings.TrimSpace(s.val)
		}
	}

	durs := []struct {
		key string
		dst *time.Duration
		val string
	}{
		{"poll_interval", &cfg.PollInterval, raw.PollInterval},
		{"settle_delay", &cfg.SettleDelay, raw.SettleDelay},
		{"load_timeout", &cfg.LoadTimeout, raw.LoadTimeout},
		{"call_timeout", &cfg.CallTimeout, raw.CallTimeout},
	}
	for _, d := range durs {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.val))
		if err != nil {
			return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse "+d.key)
		}
		*d.dst = v
	}

	if meta.IsDefined("read_attempts") {
		cfg.ReadAttempts = raw.ReadAttempts
	}
	if meta.IsDefined("interpreter") {
		cfg.Interpreter = raw.Interpreter
	}
	if meta.IsDefined("headless") {
		cfg.Headless = raw.Headless
	}
	return nil
}

// ApplyEnv overlays HOTSWAP_* variables onto cfg. A nil environ reads the
// process environment. Unset variables keep their current values.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix, Environment: environ}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse env")
	}
	return nil
}

// Validate checks that cfg can drive a runtime.
func (c Config) Validate() error {
	if err := c.Location().Validate(); err != nil {
		return err
	}
	if c.PollInterval <= 0 {
		return errors.InvalidInput(errors.PhaseConfig, "poll_interval must be positive")
	}
	if c.LoadTimeout <= 0 {
		return errors.InvalidInput(errors.PhaseConfig, "load_timeout must be positive")
	}
	if c.CallTimeout < 0 || c.SettleDelay < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "timeouts must not be negative")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Location returns the artifact location.
func (c Config) Location() loader.Location {
	return loader.Locate(c.Dir, c.Name, c.Profile)
}

// EngineConfig returns the engine settings.
func (c Config) EngineConfig() engine.Config {
	return engine.Config{
		CacheDir:    c.CacheDir,
		Interpreter: c.Interpreter,
	}
}

// LoaderOptions returns the loader settings.
func (c Config) LoaderOptions(log *zap.Logger) loader.Options {
	return loader.Options{
		Logger:       log,
		LoadTimeout:  c.LoadTimeout,
		CallTimeout:  c.CallTimeout,
		SettleDelay:  c.SettleDelay,
		ReadAttempts: c.ReadAttempts,
	}
}

// HostOptions returns the runtime settings.
func (c Config) HostOptions(log *zap.Logger) host.Options {
	return host.Options{
		Logger:       log,
		PollInterval: c.PollInterval,
	}
}
