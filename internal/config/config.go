package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Input     InputConfig     `yaml:"input"`
	Web       WebConfig       `yaml:"web"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Devices   []DeviceConfig  `yaml:"devices"`
}

type InputConfig struct {
	// Listen is the TCP address of the channel line protocol.
	Listen string     `yaml:"listen"`
	MDNS   MDNSConfig `yaml:"mdns"`
}

type MDNSConfig struct {
	Enable bool   `yaml:"enable"`
	Name   string `yaml:"name"`
}

type WebConfig struct {
	// Listen is the HTTP status address; empty disables the web server.
	Listen string `yaml:"listen"`
}

type IndicatorConfig struct {
	Enable bool `yaml:"enable"`
	// Chip is a gpiochip name or path, e.g. "gpiochip0".
	Chip string `yaml:"chip"`
	// Line is the line offset on Chip.
	Line int `yaml:"line"`
}

type DeviceConfig struct {
	Name    string `yaml:"name"`
	Backend string `yaml:"backend"`
	// Output must match the backend's device name exactly.
	Output   string   `yaml:"output"`
	Channels []string `yaml:"channels"`
	// Rate is the sample rate in Hz.
	Rate int `yaml:"rate"`
	// Period is frames per callback.
	Period    int            `yaml:"period"`
	LatencyMs float64        `yaml:"latency_ms"`
	Watchdog  WatchdogConfig `yaml:"watchdog"`
	// RetryDelay is how long to wait before setting a failed device up again.
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type WatchdogConfig struct {
	FirstWait  time.Duration `yaml:"first_wait"`
	SecondWait time.Duration `yaml:"second_wait"`
}

// Latency converts LatencyMs to a duration.
func (d DeviceConfig) Latency() time.Duration {
	return time.Duration(d.LatencyMs * float64(time.Millisecond))
}

const (
	DefaultInputListen = ":19333"
	DefaultRate        = 48000
	DefaultPeriod      = 1024
	DefaultRetryDelay  = 10 * time.Second
	DefaultWait        = 1 * time.Second

	// Below this rate the PWM carrier period collapses to a single sample.
	minRate = 94
)

var knownBackends = map[string]bool{"portaudio": true, "malgo": true, "oto": true}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultAndValidate fills defaults in place and rejects invalid settings.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	cfg.Input.Listen = strings.TrimSpace(cfg.Input.Listen)
	if cfg.Input.Listen == "" {
		cfg.Input.Listen = DefaultInputListen
	}
	if cfg.Input.MDNS.Enable && strings.TrimSpace(cfg.Input.MDNS.Name) == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "pwmaudio"
		}
		cfg.Input.MDNS.Name = host
	}

	if cfg.Indicator.Enable {
		if strings.TrimSpace(cfg.Indicator.Chip) == "" {
			cfg.Indicator.Chip = "gpiochip0"
		}
		if cfg.Indicator.Line < 0 {
			return fmt.Errorf("indicator.line must be >= 0")
		}
	}

	if len(cfg.Devices) == 0 {
		return fmt.Errorf("at least one device is required")
	}

	names := make(map[string]bool, len(cfg.Devices))
	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		d.Name = strings.TrimSpace(d.Name)
		if d.Name == "" {
			return fmt.Errorf("devices[%d].name is required", i)
		}
		if names[d.Name] {
			return fmt.Errorf("devices[%d].name %q is duplicated", i, d.Name)
		}
		names[d.Name] = true

		d.Backend = strings.ToLower(strings.TrimSpace(d.Backend))
		if d.Backend == "" {
			d.Backend = "portaudio"
		}
		if !knownBackends[d.Backend] {
			return fmt.Errorf("devices[%d].backend %q is not one of portaudio, malgo, oto", i, d.Backend)
		}
		if d.Output == "" {
			return fmt.Errorf("devices[%d].output is required", i)
		}

		if len(d.Channels) == 0 {
			return fmt.Errorf("devices[%d].channels must list at least one channel", i)
		}
		seen := make(map[string]bool, len(d.Channels))
		for j, ch := range d.Channels {
			ch = strings.TrimSpace(ch)
			if ch == "" {
				return fmt.Errorf("devices[%d].channels[%d] is empty", i, j)
			}
			if seen[ch] {
				return fmt.Errorf("devices[%d].channels[%d] %q is duplicated", i, j, ch)
			}
			seen[ch] = true
			d.Channels[j] = ch
		}

		if d.Rate == 0 {
			d.Rate = DefaultRate
		}
		if d.Rate < minRate {
			return fmt.Errorf("devices[%d].rate must be >= %d", i, minRate)
		}
		if d.Period == 0 {
			d.Period = DefaultPeriod
		}
		if d.Period < 0 {
			return fmt.Errorf("devices[%d].period must be >= 0", i)
		}
		if d.LatencyMs < 0 {
			return fmt.Errorf("devices[%d].latency_ms must be >= 0", i)
		}
		if d.Watchdog.FirstWait <= 0 {
			d.Watchdog.FirstWait = DefaultWait
		}
		if d.Watchdog.SecondWait <= 0 {
			d.Watchdog.SecondWait = DefaultWait
		}
		if d.RetryDelay <= 0 {
			d.RetryDelay = DefaultRetryDelay
		}
	}

	return nil
}
