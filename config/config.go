// Package config loads the mountd configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/w1xm/mount_interface/catalog"
	"github.com/w1xm/mount_interface/mount"
	"github.com/w1xm/mount_interface/transport"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Poll      PollConfig      `yaml:"poll"`
	Safety    SafetyConfig    `yaml:"safety"`
	Dome      DomeConfig      `yaml:"dome"`
	HTTP      HTTPConfig      `yaml:"http"`
	Console   ConsoleConfig   `yaml:"console"`
}

// ---- TRANSPORT ----

const (
	KindSerial    = "serial"
	KindTCP       = "tcp"
	KindSimulator = "simulator"
)

type TransportConfig struct {
	// Kind is serial, tcp or simulator.
	Kind         string        `yaml:"kind"`
	Port         string        `yaml:"port"`
	Baud         int           `yaml:"baud"`
	Address      string        `yaml:"address"`
	ReplyTimeout time.Duration `yaml:"reply_timeout"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
}

// ---- POLL ----

type PollConfig struct {
	StepDelay     time.Duration `yaml:"step_delay"`
	MatchInterval time.Duration `yaml:"match_interval"`
	EmptyAttempts int           `yaml:"empty_attempts"`
	MatchAttempts int           `yaml:"match_attempts"`
	ResponseTTL   time.Duration `yaml:"response_ttl"`
}

// ---- SAFETY ----

// SafetyConfig holds the thresholds in minutes before the meridian limit.
type SafetyConfig struct {
	Warn int `yaml:"warn"`
	Flip int `yaml:"flip"`
	Stop int `yaml:"stop"`
}

// ---- DOME ----

// DomeConfig locates the relay box. It is disabled when neither port nor
// url is set.
type DomeConfig struct {
	Port    string        `yaml:"port"`
	Baud    int           `yaml:"baud"`
	URL     string        `yaml:"url"`
	SlaveID uint8         `yaml:"slave_id"`
	Poll    time.Duration `yaml:"poll"`
}

func (d DomeConfig) Enabled() bool {
	return d.Port != "" || d.URL != ""
}

// ---- LISTENERS ----

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type ConsoleConfig struct {
	// Addr is empty to disable the console.
	Addr string `yaml:"addr"`
}

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	t := mount.DefaultTiming()
	th := mount.DefaultThresholds()
	return &Config{
		Transport: TransportConfig{
			Kind:         KindSerial,
			Port:         "/dev/ttyUSB0",
			Baud:         9600,
			ReplyTimeout: transport.DefaultReplyTimeout,
			RetryDelay:   time.Second,
		},
		Poll: PollConfig{
			StepDelay:     t.StepDelay,
			MatchInterval: t.MatchInterval,
			EmptyAttempts: t.EmptyAttempts,
			MatchAttempts: t.MatchAttempts,
			ResponseTTL:   t.ResponseTTL,
		},
		Safety: SafetyConfig{Warn: th.Warn, Flip: th.Flip, Stop: th.Stop},
		Dome:   DomeConfig{Baud: 19200, SlaveID: 1, Poll: time.Second},
		HTTP:   HTTPConfig{Addr: "127.0.0.1:8502"},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r over the defaults and validates the result.
// Unknown keys are an error.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration correctness. It does not modify cfg.
func Validate(cfg *Config) error {
	switch t := cfg.Transport; t.Kind {
	case KindSerial:
		if t.Port == "" {
			return errors.New("transport: serial needs a port")
		}
		if t.Baud < 0 {
			return fmt.Errorf("transport: invalid baud rate %d", t.Baud)
		}
	case KindTCP:
		if t.Address == "" {
			return errors.New("transport: tcp needs an address")
		}
	case KindSimulator:
	default:
		return fmt.Errorf("transport: unknown kind %q", t.Kind)
	}
	if cfg.Transport.ReplyTimeout < 0 || cfg.Transport.RetryDelay < 0 {
		return errors.New("transport: durations must not be negative")
	}

	p := cfg.Poll
	if p.StepDelay < 0 || p.MatchInterval < 0 || p.ResponseTTL < 0 {
		return errors.New("poll: durations must not be negative")
	}
	if p.EmptyAttempts < 0 || p.MatchAttempts < 0 {
		return errors.New("poll: attempts must not be negative")
	}
	if p.ResponseTTL > 0 && p.ResponseTTL < p.MatchInterval {
		return fmt.Errorf("poll: response_ttl %v is shorter than match_interval %v", p.ResponseTTL, p.MatchInterval)
	}

	// A reply arriving after the submitter stopped waiting lingers in the
	// matcher until response_ttl.
	if wait := emptyWait(p); cfg.Transport.ReplyTimeout >= wait {
		return fmt.Errorf("transport: reply_timeout %v must be shorter than empty_attempts*match_interval (%v)", cfg.Transport.ReplyTimeout, wait)
	}

	if err := cfg.Thresholds().Validate(); err != nil {
		return fmt.Errorf("safety: %w", err)
	}

	if cfg.Dome.Port != "" && cfg.Dome.URL != "" {
		return errors.New("dome: port and url are mutually exclusive")
	}
	if cfg.HTTP.Addr == "" {
		return errors.New("http: addr is required")
	}
	return nil
}

// emptyWait is how long the arbiter waits for a reply that never comes.
func emptyWait(p PollConfig) time.Duration {
	d := mount.DefaultTiming()
	interval, attempts := p.MatchInterval, p.EmptyAttempts
	if interval <= 0 {
		interval = d.MatchInterval
	}
	if attempts <= 0 {
		attempts = d.EmptyAttempts
	}
	return time.Duration(attempts) * interval
}

func (c *Config) Timing() mount.Timing {
	return mount.Timing{
		StepDelay:     c.Poll.StepDelay,
		MatchInterval: c.Poll.MatchInterval,
		EmptyAttempts: c.Poll.EmptyAttempts,
		MatchAttempts: c.Poll.MatchAttempts,
		ResponseTTL:   c.Poll.ResponseTTL,
	}
}

func (c *Config) Thresholds() mount.Thresholds {
	return mount.Thresholds{Warn: c.Safety.Warn, Flip: c.Safety.Flip, Stop: c.Safety.Stop}
}

func (c *Config) TransportConfig() transport.Config {
	return transport.Config{
		ReplyTimeout: c.Transport.ReplyTimeout,
		RetryDelay:   c.Transport.RetryDelay,
		NoReply:      catalog.NoReply,
	}
}
