// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meterstat.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, KindTCP, cfg.Transport.Kind)
	assert.Equal(t, time.Second, cfg.Transport.Timeout.Std())
	assert.Equal(t, 50*time.Millisecond, cfg.Transport.FrameGap.Std())
	assert.Equal(t, ":9236", cfg.Exporter.Listen)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv(EnvMeterPassword, "")
	path := writeConfig(t, `
[meter]
address = 154
timezone = "Europe/Moscow"

[transport]
kind = "tcp"
host = "10.0.0.5"
port = "4196"
timeout = "2s"
frame_gap = "80ms"

[poll]
interval = "1m"
format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 154, cfg.Meter.Address)
	assert.Equal(t, "111111", cfg.Meter.Password)
	assert.Equal(t, "10.0.0.5:4196", cfg.Transport.TCPAddress())
	assert.Equal(t, 2*time.Second, cfg.Transport.Timeout.Std())
	assert.Equal(t, 80*time.Millisecond, cfg.Transport.FrameGap.Std())
	assert.Equal(t, time.Minute, cfg.Poll.Interval.Std())
	assert.Equal(t, "json", cfg.Poll.Format)
	assert.Equal(t, 9600, cfg.Transport.Baud)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Moscow", loc.String())
}

func TestLoad_EnvPassword(t *testing.T) {
	t.Setenv(EnvMeterPassword, "222222")
	cfg, err := Load(writeConfig(t, "[meter]\naddress = 1\n"))
	require.NoError(t, err)
	assert.Equal(t, "222222", cfg.Meter.Password)
}

func TestLoad_UnknownKey(t *testing.T) {
	_, err := Load(writeConfig(t, "[meter]\nadress = 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "meter.adress")
}

func TestLoad_BadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "[transport]\ntimeout = \"soon\"\n"))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"address", func(c *Config) { c.Meter.Address = 300 }, "meter.address"},
		{"password", func(c *Config) { c.Meter.Password = "12" }, "meter.password"},
		{"timezone", func(c *Config) { c.Meter.Timezone = "Mars/Olympus" }, "meter.timezone"},
		{"kind", func(c *Config) { c.Transport.Kind = "carrier-pigeon" }, "transport.kind"},
		{"timeout", func(c *Config) { c.Transport.Timeout = 0 }, "transport.timeout"},
		{"format", func(c *Config) { c.Poll.Format = "xml" }, "poll.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte(" 250ms ")))
	assert.Equal(t, 250*time.Millisecond, d.Std())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "250ms", string(text))
}
