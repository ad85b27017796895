package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avrbus/core"
)

const sample = `
serial:
  device: /dev/ttyUSB1
  baud: 115200
spi:
  divider: 8
  mode: 3
  master: true
  double_speed: true
  chip_select: 4
i2c:
  frequency_hz: 400000
  own_address: 0x20
logging:
  level: debug
  format: json
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB1", cfg.Serial.Device)
	assert.Equal(t, 115200, cfg.Serial.Baud)
	assert.Equal(t, 100, cfg.Serial.ReadTimeoutMs, "default applied")

	spi := cfg.CoreSPI()
	assert.Equal(t, core.Div8, spi.Divider)
	assert.Equal(t, core.SPIMode(3), spi.Mode)
	assert.True(t, spi.Master)
	assert.True(t, spi.DoubleSpeed)
	assert.Equal(t, core.MSBFirst, spi.Order)
	assert.Equal(t, core.Pin(4), cfg.ChipSelect())

	i2c := cfg.CoreI2C()
	assert.Equal(t, uint32(core.DefaultCoreClockHz), i2c.CoreClockHz)
	assert.Equal(t, uint32(400000), i2c.FrequencyHz)
	assert.Equal(t, core.I2CAddress(0x20), i2c.OwnAddress)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, core.Div16, cfg.CoreSPI().Divider)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Device)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("spi:\n  clock: 4\n"))
	assert.Error(t, err)
}

func TestParseRejectsInvalidBusSettings(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want error
	}{
		{"divider for wrong speed", "spi:\n  divider: 16\n  double_speed: true\n", core.ErrSpeedMismatch},
		{"divider not a power of two", "spi:\n  divider: 3\n", core.ErrSpeedMismatch},
		{"divider overflow", "spi:\n  divider: 1024\n", core.ErrSpeedMismatch},
		{"mode", "spi:\n  mode: 4\n", core.ErrInvalidMode},
		{"chip select", "spi:\n  chip_select: 9\n", core.ErrInvalidPin},
		{"bus frequency", "i2c:\n  frequency_hz: 3000000\n", core.ErrBitRate},
		{"own address", "i2c:\n  own_address: 200\n", core.ErrBadSlaveAddress},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "avrbus.yml")
	require.NoError(t, os.WriteFile(path, []byte("spi:\n  divider: 4\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type reload struct {
		cfg *Config
		err error
	}
	reloads := make(chan reload, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(cfg *Config, err error) {
			reloads <- reload{cfg, err}
		})
	}()

	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("spi:\n  divider: 128\n"), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case r := <-reloads:
			if r.err != nil || r.cfg.SPI.Divider != 128 {
				// partial writes can surface as intermediate events
				continue
			}
			cancel()
			require.NoError(t, <-done)
			return
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}
