package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"image-converter-go/internal/converter"
	"image-converter-go/internal/format"

	"github.com/spf13/viper"
)

// Config represents the main configuration structure
type Config struct {
	Conversion ConversionConfig `mapstructure:"conversion"`
	Watch      WatchConfig      `mapstructure:"watch"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ConversionConfig contains the default conversion parameters
type ConversionConfig struct {
	Quality int          `mapstructure:"quality"`
	Format  string       `mapstructure:"format"`
	Resize  ResizeConfig `mapstructure:"resize"`
}

// ResizeConfig contains the default target size; zero disables resizing
type ResizeConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// WatchConfig contains watch mode settings
type WatchConfig struct {
	DebounceMS  int  `mapstructure:"debounce_ms"`
	InitialScan bool `mapstructure:"initial_scan"`
}

// ServerConfig contains web interface settings
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Conversion: ConversionConfig{
			Quality: converter.DefaultQuality,
			Format:  "PNG",
		},
		Watch: WatchConfig{
			DebounceMS:  500,
			InitialScan: false,
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables.
// A missing config file is not an error; defaults are used instead.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.image-converter")
		v.AddConfigPath("/etc/image-converter")
	}

	// Defaults must be registered for AutomaticEnv to resolve nested keys.
	setDefaults(v, config)

	v.SetEnvPrefix("IMAGE_CONVERTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("conversion.quality", c.Conversion.Quality)
	v.SetDefault("conversion.format", c.Conversion.Format)
	v.SetDefault("conversion.resize.width", c.Conversion.Resize.Width)
	v.SetDefault("conversion.resize.height", c.Conversion.Resize.Height)
	v.SetDefault("watch.debounce_ms", c.Watch.DebounceMS)
	v.SetDefault("watch.initial_scan", c.Watch.InitialScan)
	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.file_path", c.Logging.FilePath)
	v.SetDefault("logging.max_size", c.Logging.MaxSize)
	v.SetDefault("logging.max_backups", c.Logging.MaxBackups)
	v.SetDefault("logging.max_age", c.Logging.MaxAge)
	v.SetDefault("logging.compress", c.Logging.Compress)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := converter.ValidateQuality(c.Conversion.Quality); err != nil {
		return err
	}

	if _, err := format.Parse(c.Conversion.Format); err != nil {
		return err
	}
	c.Conversion.Format = strings.ToUpper(c.Conversion.Format)

	if err := converter.ValidateResize(c.Conversion.Resize.Width, c.Conversion.Resize.Height); err != nil {
		return err
	}

	if c.Watch.DebounceMS < 0 {
		c.Watch.DebounceMS = 0
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// OutputFormat returns the configured batch output format.
func (c *Config) OutputFormat() format.Format {
	f, err := format.Parse(c.Conversion.Format)
	if err != nil {
		return format.PNG
	}
	return f
}

// Options returns the configured conversion options.
func (c *Config) Options() converter.Options {
	return converter.Options{
		Quality: c.Conversion.Quality,
		Width:   c.Conversion.Resize.Width,
		Height:  c.Conversion.Resize.Height,
	}
}

// Debounce returns the watch debounce delay.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceMS) * time.Millisecond
}

// Address returns the host:port the web interface listens on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
