package config

import (
	"time"

	"codeberg.org/mutker/housemon/internal/poller"
	"codeberg.org/mutker/housemon/internal/publish"
	"codeberg.org/mutker/housemon/internal/report"
	"codeberg.org/mutker/housemon/internal/sensor"
	"codeberg.org/mutker/housemon/internal/telemetry"
)

// DelayDuration returns Delay as a time.Duration.
func (c *Config) DelayDuration() time.Duration {
	return time.Duration(c.Delay) * time.Second
}

func (c *Config) PollerConfig() poller.Config {
	return poller.Config{
		Pin:       c.Pin,
		Delay:     c.DelayDuration(),
		MaxCycles: c.Count,
	}
}

func (c *Config) SensorConfig() sensor.Config {
	return sensor.Config{
		Type:       c.Sensor.Type,
		I2CBus:     c.Sensor.I2CBus,
		I2CAddress: c.Sensor.I2CAddress,
		Retries:    c.Sensor.Retries,
		Simulation: sensor.SimulatedConfig{
			MinTemp:     c.Sensor.Simulation.MinTemperature,
			MaxTemp:     c.Sensor.Simulation.MaxTemperature,
			MinHumidity: c.Sensor.Simulation.MinHumidity,
			MaxHumidity: c.Sensor.Simulation.MaxHumidity,
			FailureRate: c.Sensor.Simulation.FailureRate,
		},
	}
}

// ReportConfig keeps one day of rows at the configured delay.
func (c *Config) ReportConfig() report.Config {
	return report.Config{
		TablePath:   c.Report.TablePath,
		SummaryPath: c.Report.SummaryPath,
		Rows:        report.Rows(c.Delay),
		Target:      c.Target,
	}
}

func (c *Config) TelemetryConfig() telemetry.Config {
	return telemetry.Config{
		Enabled:   c.Telemetry.Enabled,
		DBPath:    c.Telemetry.DBPath,
		BackupDir: c.Telemetry.BackupDir,
	}
}

func (c *Config) PublishConfig() publish.Config {
	return publish.Config{
		Enabled:  c.MQTT.Enabled,
		Server:   c.MQTT.Server,
		Topic:    c.MQTT.Topic,
		ClientID: c.MQTT.ClientID,
		Username: c.MQTT.Username,
		Password: c.MQTT.Password,
		QoS:      byte(c.MQTT.QoS),
		Retain:   c.MQTT.Retain,
		Timeout:  publish.DefaultTimeout,
	}
}
