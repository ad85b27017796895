// Package config loads the host-side bus configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"avrbus/core"
)

// Config is the host configuration file.
type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Reset   ResetConfig   `yaml:"reset"`
	SPI     SPIConfig     `yaml:"spi"`
	I2C     I2CConfig     `yaml:"i2c"`
	Logging LoggingConfig `yaml:"logging"`
}

// SerialConfig describes the link to the firmware.
type SerialConfig struct {
	Device        string `yaml:"device"`
	Baud          int    `yaml:"baud"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
	AckTimeoutMs  int    `yaml:"ack_timeout_ms"`
}

// ResetConfig describes the MCU reset line on the host's GPIO header.
// Pin 0 disables the reset pulse.
type ResetConfig struct {
	Pin     int `yaml:"pin"`
	PulseMs int `yaml:"pulse_ms"`
}

// SPIConfig mirrors core.SPIConfig with file-friendly fields.
type SPIConfig struct {
	Divider         int  `yaml:"divider"`
	Mode            int  `yaml:"mode"`
	Master          bool `yaml:"master"`
	DoubleSpeed     bool `yaml:"double_speed"`
	LSBFirst        bool `yaml:"lsb_first"`
	InterruptEnable bool `yaml:"interrupt_enable"`
	ChipSelect      int  `yaml:"chip_select"`
}

// I2CConfig mirrors core.I2CConfig.
type I2CConfig struct {
	CoreClockHz     uint32 `yaml:"core_clock_hz"`
	FrequencyHz     uint32 `yaml:"frequency_hz"`
	OwnAddress      int    `yaml:"own_address"`
	GeneralCall     bool   `yaml:"general_call"`
	InterruptEnable bool   `yaml:"interrupt_enable"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML, rejecting unknown keys, applies defaults and
// validates the bus settings.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in missing values.
func applyDefaults(cfg *Config) {
	if cfg.Serial.Device == "" {
		cfg.Serial.Device = "/dev/ttyACM0"
	}
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 250000
	}
	if cfg.Serial.ReadTimeoutMs == 0 {
		cfg.Serial.ReadTimeoutMs = 100
	}
	if cfg.Serial.AckTimeoutMs == 0 {
		cfg.Serial.AckTimeoutMs = 500
	}

	if cfg.Reset.PulseMs == 0 {
		cfg.Reset.PulseMs = 50
	}

	if cfg.SPI.Divider == 0 {
		cfg.SPI.Divider = int(core.Div16)
	}

	if cfg.I2C.CoreClockHz == 0 {
		cfg.I2C.CoreClockHz = core.DefaultCoreClockHz
	}
	if cfg.I2C.FrequencyHz == 0 {
		cfg.I2C.FrequencyHz = core.DefaultI2CFrequency
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate checks the bus settings with the same rules the firmware
// applies, so a bad file is caught before anything is sent.
func (c *Config) Validate() error {
	if c.SPI.Divider < 0 || c.SPI.Divider > 0xff {
		return fmt.Errorf("spi.divider %d: %w", c.SPI.Divider, core.ErrSpeedMismatch)
	}
	if c.SPI.Mode < 0 || c.SPI.Mode > 0xff {
		return fmt.Errorf("spi.mode %d: %w", c.SPI.Mode, core.ErrInvalidMode)
	}
	if _, err := core.ControlPattern(c.CoreSPI()); err != nil {
		return fmt.Errorf("spi: %w", err)
	}
	if c.SPI.ChipSelect < 0 || c.SPI.ChipSelect > 7 {
		return fmt.Errorf("spi.chip_select %d: %w", c.SPI.ChipSelect, core.ErrInvalidPin)
	}

	if _, err := core.BitRate(c.I2C.CoreClockHz, c.I2C.FrequencyHz); err != nil {
		return fmt.Errorf("i2c: %w", err)
	}
	if c.I2C.OwnAddress < 0 || c.I2C.OwnAddress > 0x7f {
		return fmt.Errorf("i2c.own_address %d: %w", c.I2C.OwnAddress, core.ErrBadSlaveAddress)
	}
	return nil
}

// CoreSPI converts the SPI section to the driver configuration.
func (c *Config) CoreSPI() core.SPIConfig {
	cfg := core.SPIConfig{
		Divider:         core.Divider(c.SPI.Divider),
		Mode:            core.SPIMode(c.SPI.Mode),
		Master:          c.SPI.Master,
		DoubleSpeed:     c.SPI.DoubleSpeed,
		InterruptEnable: c.SPI.InterruptEnable,
	}
	if c.SPI.LSBFirst {
		cfg.Order = core.LSBFirst
	}
	return cfg
}

// ChipSelect returns the configured chip-select pin.
func (c *Config) ChipSelect() core.Pin {
	return core.Pin(c.SPI.ChipSelect)
}

// CoreI2C converts the I2C section to the driver configuration.
func (c *Config) CoreI2C() core.I2CConfig {
	return core.I2CConfig{
		CoreClockHz:     c.I2C.CoreClockHz,
		FrequencyHz:     c.I2C.FrequencyHz,
		OwnAddress:      core.I2CAddress(c.I2C.OwnAddress),
		GeneralCall:     c.I2C.GeneralCall,
		InterruptEnable: c.I2C.InterruptEnable,
	}
}
