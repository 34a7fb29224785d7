// Package config loads housemon settings from flags, environment variables
// and an optional TOML or YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"codeberg.org/mutker/housemon/internal/errors"
	"codeberg.org/mutker/housemon/internal/logger"
	"codeberg.org/mutker/housemon/internal/publish"
	"codeberg.org/mutker/housemon/internal/report"
	"codeberg.org/mutker/housemon/internal/sensor"
	"codeberg.org/mutker/housemon/internal/telemetry"
)

const (
	configName       = "housemon"
	defaultEnvPrefix = "HOUSEMON"
	systemConfigDir  = "/etc/housemon"

	DefaultPin     = 4
	DefaultFile    = "defaultRecords.csv"
	DefaultDelay   = 300
	DefaultLogFile = "./logs/householdMonitor.log"

	defaultFilePerm = 0o644
)

type Config struct {
	Pin      int     `mapstructure:"pin" yaml:"pin"`
	File     string  `mapstructure:"file" yaml:"file"`
	Delay    int     `mapstructure:"delay" yaml:"delay"`
	Target   float64 `mapstructure:"target" yaml:"target"`
	Count    int     `mapstructure:"count" yaml:"count"`
	Verbose  bool    `mapstructure:"verbose" yaml:"verbose"`
	LogLevel string  `mapstructure:"log_level" yaml:"log_level"`
	LogFile  string  `mapstructure:"log_file" yaml:"log_file"`

	Sensor    SensorConfig    `mapstructure:"sensor" yaml:"sensor"`
	Report    ReportConfig    `mapstructure:"report" yaml:"report"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	MQTT      MQTTConfig      `mapstructure:"mqtt" yaml:"mqtt"`

	// Command line only.
	RenderOnce  bool   `mapstructure:"render_once" yaml:"-"`
	WriteConfig string `mapstructure:"write_config" yaml:"-"`

	// ConfigFile is the file that was read, if any.
	ConfigFile string `mapstructure:"-" yaml:"-"`
}

type SensorConfig struct {
	Type       string           `mapstructure:"type" yaml:"type"`
	I2CBus     string           `mapstructure:"i2c_bus" yaml:"i2c_bus"`
	I2CAddress uint16           `mapstructure:"i2c_address" yaml:"i2c_address"`
	Retries    int              `mapstructure:"retries" yaml:"retries"`
	Simulation SimulationConfig `mapstructure:"simulation" yaml:"simulation"`
}

type SimulationConfig struct {
	MinTemperature float64 `mapstructure:"min_temperature" yaml:"min_temperature"`
	MaxTemperature float64 `mapstructure:"max_temperature" yaml:"max_temperature"`
	MinHumidity    float64 `mapstructure:"min_humidity" yaml:"min_humidity"`
	MaxHumidity    float64 `mapstructure:"max_humidity" yaml:"max_humidity"`
	FailureRate    float64 `mapstructure:"failure_rate" yaml:"failure_rate"`
}

type ReportConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	TablePath   string `mapstructure:"table" yaml:"table"`
	SummaryPath string `mapstructure:"summary" yaml:"summary"`
}

type TelemetryConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	DBPath    string `mapstructure:"db_path" yaml:"db_path"`
	BackupDir string `mapstructure:"backup_dir" yaml:"backup_dir"`
}

type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Server   string `mapstructure:"server" yaml:"server"`
	Topic    string `mapstructure:"topic" yaml:"topic"`
	ClientID string `mapstructure:"client_id" yaml:"client_id"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	QoS      int    `mapstructure:"qos" yaml:"qos"`
	Retain   bool   `mapstructure:"retain" yaml:"retain"`
}

// Default returns the built-in configuration.
func Default() *Config {
	sim := sensor.DefaultSimulatedConfig()
	return &Config{
		Pin:     DefaultPin,
		File:    DefaultFile,
		Delay:   DefaultDelay,
		Target:  report.DefaultTarget,
		LogFile: DefaultLogFile,
		Sensor: SensorConfig{
			Type:       sensor.TypeDHT22,
			I2CBus:     "",
			I2CAddress: sensor.DefaultBME280Address,
			Retries:    sensor.DefaultDHT22Retries,
			Simulation: SimulationConfig{
				MinTemperature: sim.MinTemp,
				MaxTemperature: sim.MaxTemp,
				MinHumidity:    sim.MinHumidity,
				MaxHumidity:    sim.MaxHumidity,
			},
		},
		Report: ReportConfig{
			Enabled:     true,
			TablePath:   report.DefaultTablePath,
			SummaryPath: report.DefaultSummaryPath,
		},
		Telemetry: TelemetryConfig{
			DBPath: telemetry.DefaultConfig().DBPath,
		},
		MQTT: MQTTConfig{
			Server: publish.DefaultServer,
			Topic:  publish.DefaultTopic,
		},
	}
}

// flags declares the command line. Names use dashes; keys map them onto
// the viper keys they override.
func flags(name string) (*pflag.FlagSet, map[string]string) {
	d := Default()
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)

	fs.IntP("pin", "p", d.Pin, "GPIO pin the sensor is attached to")
	fs.StringP("file", "f", d.File, "CSV file to write records to")
	fs.IntP("delay", "d", d.Delay, "Seconds between sensor reads")
	fs.Float64P("target", "t", d.Target, "Target temperature in Celsius")
	fs.IntP("count", "n", d.Count, "Stop after this many reads (0 = run until interrupted)")
	fs.BoolP("verbose", "v", d.Verbose, "Enable debug logging")
	fs.String("log-level", d.LogLevel, "Log level (debug, info, warning, error)")
	fs.String("log-file", d.LogFile, "Also write logs to this file (empty to disable)")
	fs.String("config", "", "Path to configuration file")
	fs.String("sensor", d.Sensor.Type, "Sensor type (dht22, bme280, simulated)")
	fs.Bool("render-once", false, "Render the report from the existing record file and exit")
	fs.String("write-config", "", "Write an example configuration to this path and exit")

	keys := map[string]string{
		"pin":          "pin",
		"file":         "file",
		"delay":        "delay",
		"target":       "target",
		"count":        "count",
		"verbose":      "verbose",
		"log-level":    "log_level",
		"log-file":     "log_file",
		"sensor":       "sensor.type",
		"render-once":  "render_once",
		"write-config": "write_config",
	}

	return fs, keys
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("pin", d.Pin)
	v.SetDefault("file", d.File)
	v.SetDefault("delay", d.Delay)
	v.SetDefault("target", d.Target)
	v.SetDefault("count", d.Count)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("render_once", false)
	v.SetDefault("write_config", "")

	v.SetDefault("sensor.type", d.Sensor.Type)
	v.SetDefault("sensor.i2c_bus", d.Sensor.I2CBus)
	v.SetDefault("sensor.i2c_address", d.Sensor.I2CAddress)
	v.SetDefault("sensor.retries", d.Sensor.Retries)
	v.SetDefault("sensor.simulation.min_temperature", d.Sensor.Simulation.MinTemperature)
	v.SetDefault("sensor.simulation.max_temperature", d.Sensor.Simulation.MaxTemperature)
	v.SetDefault("sensor.simulation.min_humidity", d.Sensor.Simulation.MinHumidity)
	v.SetDefault("sensor.simulation.max_humidity", d.Sensor.Simulation.MaxHumidity)
	v.SetDefault("sensor.simulation.failure_rate", d.Sensor.Simulation.FailureRate)

	v.SetDefault("report.enabled", d.Report.Enabled)
	v.SetDefault("report.table", d.Report.TablePath)
	v.SetDefault("report.summary", d.Report.SummaryPath)

	v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	v.SetDefault("telemetry.db_path", d.Telemetry.DBPath)
	v.SetDefault("telemetry.backup_dir", d.Telemetry.BackupDir)

	v.SetDefault("mqtt.enabled", d.MQTT.Enabled)
	v.SetDefault("mqtt.server", d.MQTT.Server)
	v.SetDefault("mqtt.topic", d.MQTT.Topic)
	v.SetDefault("mqtt.client_id", d.MQTT.ClientID)
	v.SetDefault("mqtt.username", d.MQTT.Username)
	v.SetDefault("mqtt.password", d.MQTT.Password)
	v.SetDefault("mqtt.qos", d.MQTT.QoS)
	v.SetDefault("mqtt.retain", d.MQTT.Retain)
}

// Load builds the configuration from, in increasing precedence: defaults,
// the config file, HOUSEMON_* environment variables, and args. It returns
// pflag.ErrHelp unchanged when -h/--help is given.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{
		envPrefix:   defaultEnvPrefix,
		searchPaths: []string{".", systemConfigDir},
	}
	for _, opt := range opts {
		opt(&o)
	}

	fs, keys := flags(configName)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range keys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	configPath := o.configPath
	if envPath := os.Getenv(o.envPrefix + "_CONFIG"); envPath != "" {
		configPath = envPath
	}
	if flagPath, _ := fs.GetString("config"); flagPath != "" {
		configPath = flagPath
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		for _, p := range o.searchPaths {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	return cfg, nil
}

// Level resolves LogLevel and Verbose into a logger level. Verbose wins
// over an unset level.
func (c *Config) Level() logger.LogLevel {
	if c.LogLevel == "" {
		if c.Verbose {
			return logger.DebugLevel
		}
		return logger.InfoLevel
	}
	level, _ := logger.ParseLevel(c.LogLevel)
	return level
}

// Validate reports the first setting that would make startup fail.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Delay <= 0 {
		return errFactory.WithData(errors.ErrInvalidDelay, c.Delay)
	}
	if filepath.Ext(c.File) != ".csv" {
		return errFactory.WithData(errors.ErrInvalidRecordFile, c.File)
	}
	if c.Pin < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, fmt.Sprintf("pin must not be negative: %d", c.Pin))
	}
	if c.Count < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, fmt.Sprintf("count must not be negative: %d", c.Count))
	}

	switch c.Sensor.Type {
	case sensor.TypeDHT22, sensor.TypeBME280, sensor.TypeSimulated:
	default:
		return errFactory.WithData(errors.ErrInvalidSensor, c.Sensor.Type)
	}
	if c.Sensor.Retries < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, fmt.Sprintf("sensor retries must not be negative: %d", c.Sensor.Retries))
	}

	if c.LogLevel != "" {
		if _, ok := logger.ParseLevel(c.LogLevel); !ok {
			return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
		}
	}

	if c.Telemetry.Enabled && c.Telemetry.DBPath == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "telemetry enabled without db_path")
	}
	if c.MQTT.Enabled && c.MQTT.Server == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "mqtt enabled without server")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, fmt.Sprintf("mqtt qos must be 0, 1 or 2: %d", c.MQTT.QoS))
	}

	return nil
}

// WriteExample writes the default configuration as YAML to path. An
// existing file is left untouched.
func WriteExample(path string) error {
	errFactory := errors.New()

	data, err := yaml.Marshal(Default())
	if err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	header := []byte("# housemon configuration\n# Flags and HOUSEMON_* environment variables override these values.\n")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, defaultFilePerm)
	if err != nil {
		return errFactory.Wrap(errors.ErrInvalidArgument, err)
	}
	defer f.Close()

	if _, err := f.Write(append(header, data...)); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}
	return f.Close()
}
