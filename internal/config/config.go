// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

// Package config loads meterstat settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Thermoquad/meterstat/pkg/mercury"
)

// Environment variables
const (
	EnvMeterPassword = "METERSTAT_METER_PASSWORD"
	EnvWSPassword    = "METERSTAT_WS_PASSWORD"
)

// Transport kinds
const (
	KindTCP       = "tcp"
	KindSerial    = "serial"
	KindWebSocket = "websocket"
)

// Duration is a time.Duration written as "1s" or "250ms" in TOML
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Meter identifies the meter on the bus
type Meter struct {
	Address  int    `toml:"address"`
	Password string `toml:"password"`
	Timezone string `toml:"timezone"`
}

// Transport selects and configures the link to the meter
type Transport struct {
	Kind     string   `toml:"kind"`
	Host     string   `toml:"host"`
	Port     string   `toml:"port"`
	Device   string   `toml:"device"`
	Baud     int      `toml:"baud"`
	URL      string   `toml:"url"`
	Username string   `toml:"username"`
	Insecure bool     `toml:"no_ssl_verify"`
	Timeout  Duration `toml:"timeout"`
	FrameGap Duration `toml:"frame_gap"`
}

// Poll configures the poll command
type Poll struct {
	Interval Duration `toml:"interval"`
	Format   string   `toml:"format"`
}

// Exporter configures the Prometheus exporter
type Exporter struct {
	Listen   string   `toml:"listen"`
	Interval Duration `toml:"interval"`
}

// Config is the complete file
type Config struct {
	Meter     Meter     `toml:"meter"`
	Transport Transport `toml:"transport"`
	Poll      Poll      `toml:"poll"`
	Exporter  Exporter  `toml:"exporter"`
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		Meter: Meter{
			Password: mercury.DefaultPassword,
			Timezone: "Local",
		},
		Transport: Transport{
			Kind:     KindTCP,
			Port:     "4196",
			Baud:     9600,
			Timeout:  Duration(time.Second),
			FrameGap: Duration(50 * time.Millisecond),
		},
		Poll: Poll{
			Interval: Duration(10 * time.Second),
			Format:   "text",
		},
		Exporter: Exporter{
			Listen:   ":9236",
			Interval: Duration(15 * time.Second),
		},
	}
}

// Load reads path over the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("load config: unknown keys: %s", strings.Join(keys, ", "))
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides
func (c *Config) ApplyEnv() {
	if pw := os.Getenv(EnvMeterPassword); pw != "" {
		c.Meter.Password = pw
	}
}

// Validate checks value ranges
func (c Config) Validate() error {
	var errs []error

	if c.Meter.Address < 0 || c.Meter.Address > 0xFF {
		errs = append(errs, fmt.Errorf("meter.address %d out of range 0-255", c.Meter.Address))
	}
	if len(c.Meter.Password) != mercury.PasswordLength {
		errs = append(errs, fmt.Errorf("meter.password must be %d digits", mercury.PasswordLength))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("meter.timezone: %w", err))
	}

	switch c.Transport.Kind {
	case KindTCP, KindSerial, KindWebSocket:
	default:
		errs = append(errs, fmt.Errorf("transport.kind %q must be tcp, serial or websocket", c.Transport.Kind))
	}
	switch {
	case c.Transport.Kind == KindSerial && c.Transport.Device == "":
		errs = append(errs, fmt.Errorf("transport.device is required for serial"))
	case c.Transport.Kind == KindWebSocket && c.Transport.URL == "":
		errs = append(errs, fmt.Errorf("transport.url is required for websocket"))
	}
	if c.Transport.Baud <= 0 {
		errs = append(errs, fmt.Errorf("transport.baud must be positive"))
	}
	if c.Transport.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("transport.timeout must be positive"))
	}
	if c.Transport.FrameGap <= 0 {
		errs = append(errs, fmt.Errorf("transport.frame_gap must be positive"))
	}

	if c.Poll.Interval <= 0 {
		errs = append(errs, fmt.Errorf("poll.interval must be positive"))
	}
	switch c.Poll.Format {
	case "text", "json", "cbor":
	default:
		errs = append(errs, fmt.Errorf("poll.format %q must be text, json or cbor", c.Poll.Format))
	}
	if c.Exporter.Interval <= 0 {
		errs = append(errs, fmt.Errorf("exporter.interval must be positive"))
	}

	return errors.Join(errs...)
}

// Location resolves the meter timezone
func (c Config) Location() (*time.Location, error) {
	switch c.Meter.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		return time.LoadLocation(c.Meter.Timezone)
	}
}

// TCPAddress joins host and port
func (t Transport) TCPAddress() string {
	return net.JoinHostPort(t.Host, t.Port)
}
