// Package config gathers the parameters of a simulation run from defaults, a
// TOML file, the environment and command line flags, in that order of
// precedence.
package config

import (
	"math/bits"
	"os"
	"strconv"
	"strings"

	"fortio.org/safecast"
	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sarchlab/simtrace/vcd"
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// EnvPrefix is the prefix of the environment variables read by LoadEnv.
const EnvPrefix = "SIMTRACE_"

// Config holds every tunable of a run.
type Config struct {
	Design    string `toml:"design"`
	Steps     int    `toml:"steps"`
	Scale     uint64 `toml:"scale"`
	Depth     int    `toml:"depth"`
	Output    string `toml:"output"`
	Timescale string `toml:"timescale"`

	Record      string `toml:"record"`
	Monitor     bool   `toml:"monitor"`
	MonitorPort int    `toml:"monitor_port"`
	CPUProfile  string `toml:"cpuprofile"`

	// SequentialIDs numbers sessions 1, 2, ... instead of using unique IDs,
	// so that repeated runs write identical traces and records.
	SequentialIDs bool `toml:"sequential_ids"`

	// Args are passed to the design untouched.
	Args []string `toml:"args"`
}

// Default returns the configuration of the reference driver: 20 steps, 10
// time units per step, depth 99, written to wave.vcd.
func Default() Config {
	return Config{
		Design:    "counter",
		Steps:     20,
		Scale:     10,
		Depth:     99,
		Output:    "wave.vcd",
		Timescale: vcd.DefaultTimescale.String(),
	}
}

// LoadFile overlays the keys present in a TOML file.
func (c *Config) LoadFile(path string) error {
	meta, err := toml.DecodeFile(path, c)
	if err != nil {
		return errors.Wrapf(err, "load config %s", path)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}

		return errors.Wrapf(ErrInvalidConfig, "%s: unknown keys %s",
			path, strings.Join(keys, ", "))
	}

	return nil
}

// LoadEnv overlays SIMTRACE_* variables. Variables from the given dotenv
// files are used when the process environment does not define them.
func (c *Config) LoadEnv(dotenvFiles ...string) error {
	fromFiles := map[string]string{}

	if len(dotenvFiles) > 0 {
		var err error

		fromFiles, err = godotenv.Read(dotenvFiles...)
		if err != nil {
			return errors.Wrap(err, "load env file")
		}
	}

	return c.applyEnv(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}

		v, ok := fromFiles[key]

		return v, ok
	})
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	integer := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}

		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return errors.Wrapf(ErrInvalidConfig, "%s%s: %v", EnvPrefix, name, err)
		}

		*dst = n

		return nil
	}

	str("DESIGN", &c.Design)
	str("OUTPUT", &c.Output)
	str("TIMESCALE", &c.Timescale)
	str("RECORD", &c.Record)
	str("CPUPROFILE", &c.CPUProfile)

	for name, dst := range map[string]*int{
		"STEPS":        &c.Steps,
		"DEPTH":        &c.Depth,
		"MONITOR_PORT": &c.MonitorPort,
	} {
		if err := integer(name, dst); err != nil {
			return err
		}
	}

	if v, ok := lookup(EnvPrefix + "SCALE"); ok {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return errors.Wrapf(ErrInvalidConfig, "%sSCALE: %v", EnvPrefix, err)
		}

		c.Scale = n
	}

	for name, dst := range map[string]*bool{
		"MONITOR":        &c.Monitor,
		"SEQUENTIAL_IDS": &c.SequentialIDs,
	} {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}

		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return errors.Wrapf(ErrInvalidConfig, "%s%s: %v", EnvPrefix, name, err)
		}

		*dst = b
	}

	return nil
}

// Validate checks the configuration before a run starts.
func (c Config) Validate() error {
	if c.Design == "" {
		return errors.Wrap(ErrInvalidConfig, "design cannot be empty")
	}

	if c.Steps < 0 {
		return errors.Wrapf(ErrInvalidConfig, "steps must be >= 0, got %d",
			c.Steps)
	}

	if c.Scale == 0 {
		return errors.Wrap(ErrInvalidConfig, "scale must be > 0")
	}

	if c.Depth <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "depth must be > 0, got %d",
			c.Depth)
	}

	if c.Output == "" {
		return errors.Wrap(ErrInvalidConfig, "output cannot be empty")
	}

	if _, err := vcd.ParseTimescale(c.Timescale); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}

	if c.Monitor && c.MonitorPort != 0 && c.MonitorPort < 1000 {
		return errors.Wrapf(ErrInvalidConfig,
			"monitor port must be 0 or >= 1000, got %d", c.MonitorPort)
	}

	if !c.Monitor && c.MonitorPort != 0 {
		return errors.Wrap(ErrInvalidConfig,
			"monitor port cannot be set when monitoring is disabled")
	}

	return c.lastTimestampMustFit()
}

func (c Config) lastTimestampMustFit() error {
	if c.Steps == 0 {
		return nil
	}

	last, err := safecast.Conv[uint64](c.Steps - 1)
	if err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}

	if hi, _ := bits.Mul64(last, c.Scale); hi != 0 {
		return errors.Wrapf(ErrInvalidConfig,
			"%d steps of %d time units overflow the timestamp", c.Steps, c.Scale)
	}

	return nil
}
