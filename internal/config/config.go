package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full persisted settings state: acquisition rate, sensor
// sources, per-channel calibration, board orientation, and output wiring.
type Config struct {
	Sensors     SensorsConfig     `yaml:"sensors"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Rotation    RotationConfig    `yaml:"rotation"`
	Publish     PublishConfig     `yaml:"publish"`
	Web         WebConfig         `yaml:"web"`
}

type SensorsConfig struct {
	// RateHz is the main acquisition loop rate.
	RateHz int `yaml:"rate_hz"`
	// Source selects the driver backend: "i2c" or "sim".
	Source string `yaml:"source"`

	I2CBus   int    `yaml:"i2c_bus"`
	IMUAddr  uint16 `yaml:"imu_addr"`
	BaroAddr uint16 `yaml:"baro_addr"`
	// IMUInterruptPin is the BCM GPIO carrying the IMU data-ready line.
	// 0 disables interrupt-driven delivery (the driver falls back to an
	// internal timer at the sensor ODR).
	IMUInterruptPin int `yaml:"imu_interrupt_pin"`
}

// AxisTriple is a per-axis float setting.
type AxisTriple struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// Extent is a calibrated temperature range in degrees C.
type Extent struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type AccelCalibration struct {
	Bias  AxisTriple `yaml:"bias"`
	Scale AxisTriple `yaml:"scale"`
	// TempCoeff is the linear temperature coefficient per axis.
	TempCoeff AxisTriple `yaml:"temp_coeff"`
}

type GyroCalibration struct {
	Bias  AxisTriple `yaml:"bias"`
	Scale AxisTriple `yaml:"scale"`
	// TempCoeff / TempCoeff2 are the linear and quadratic temperature
	// coefficients per axis: bias = (c + c2*t) * t.
	TempCoeff  AxisTriple `yaml:"temp_coeff"`
	TempCoeff2 AxisTriple `yaml:"temp_coeff2"`
}

type MagCalibration struct {
	Bias AxisTriple `yaml:"bias"`
	// Transform is the row-major 3x3 soft-iron matrix.
	Transform [3][3]float64 `yaml:"transform"`
}

// BaroCalibration is the pressure bias polynomial
// bias = a + b*t + c*t^2 + d*t^3, valid over Extent.
type BaroCalibration struct {
	A      float64 `yaml:"a"`
	B      float64 `yaml:"b"`
	C      float64 `yaml:"c"`
	D      float64 `yaml:"d"`
	Extent Extent  `yaml:"extent"`
}

type CalibrationConfig struct {
	Accel AccelCalibration `yaml:"accel"`
	Gyro  GyroCalibration  `yaml:"gyro"`
	// TempExtent is the temperature range the accel/gyro coefficients were
	// fitted over; it is shared by both channels.
	TempExtent Extent          `yaml:"temp_extent"`
	Mag        MagCalibration  `yaml:"mag"`
	AuxMag     MagCalibration  `yaml:"aux_mag"`
	Baro       BaroCalibration `yaml:"baro"`
}

// RotationConfig is the user-specified board orientation, in degrees.
type RotationConfig struct {
	BoardRollDeg  float64 `yaml:"board_roll_deg"`
	BoardPitchDeg float64 `yaml:"board_pitch_deg"`
	BoardYawDeg   float64 `yaml:"board_yaw_deg"`
	TrimRollDeg   float64 `yaml:"trim_roll_deg"`
	TrimPitchDeg  float64 `yaml:"trim_pitch_deg"`
}

type MQTTConfig struct {
	Enable      bool   `yaml:"enable"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

type UDPConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
}

type PublishConfig struct {
	MQTT MQTTConfig `yaml:"mqtt"`
	UDP  UDPConfig  `yaml:"udp"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

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

// DefaultAndValidate fills safe defaults and rejects configs the pipeline
// cannot run with.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if cfg.Sensors.RateHz == 0 {
		cfg.Sensors.RateHz = 500
	}
	if cfg.Sensors.RateHz < 1 || cfg.Sensors.RateHz > 1000 {
		return fmt.Errorf("sensors.rate_hz must be in [1,1000], got %d", cfg.Sensors.RateHz)
	}
	if cfg.Sensors.Source == "" {
		cfg.Sensors.Source = "i2c"
	}
	if cfg.Sensors.Source != "i2c" && cfg.Sensors.Source != "sim" {
		return fmt.Errorf("sensors.source must be \"i2c\" or \"sim\", got %q", cfg.Sensors.Source)
	}
	if cfg.Sensors.I2CBus == 0 {
		cfg.Sensors.I2CBus = 1
	}

	// A zero scale means "uncalibrated"; treat it as unity so raw values
	// pass through unchanged.
	defaultTriple(&cfg.Calibration.Accel.Scale, 1)
	defaultTriple(&cfg.Calibration.Gyro.Scale, 1)
	defaultTransform(&cfg.Calibration.Mag.Transform)
	defaultTransform(&cfg.Calibration.AuxMag.Transform)

	if cfg.Calibration.TempExtent.Max < cfg.Calibration.TempExtent.Min {
		return fmt.Errorf("calibration.temp_extent: max < min")
	}
	if cfg.Calibration.Baro.Extent.Max < cfg.Calibration.Baro.Extent.Min {
		return fmt.Errorf("calibration.baro.extent: max < min")
	}

	if cfg.Publish.MQTT.Enable {
		if cfg.Publish.MQTT.Broker == "" {
			return fmt.Errorf("publish.mqtt.broker is required when publish.mqtt.enable is true")
		}
		if cfg.Publish.MQTT.ClientID == "" {
			cfg.Publish.MQTT.ClientID = "sensorpipe"
		}
		if cfg.Publish.MQTT.TopicPrefix == "" {
			cfg.Publish.MQTT.TopicPrefix = "sensorpipe"
		}
	}
	if cfg.Publish.UDP.Enable && cfg.Publish.UDP.Dest == "" {
		return fmt.Errorf("publish.udp.dest is required when publish.udp.enable is true")
	}
	if cfg.Web.Enable && cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	return nil
}

func defaultTriple(t *AxisTriple, v float64) {
	if t.X == 0 && t.Y == 0 && t.Z == 0 {
		t.X, t.Y, t.Z = v, v, v
	}
}

func defaultTransform(m *[3][3]float64) {
	zero := true
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if m[i][j] != 0 {
				zero = false
			}
		}
	}
	if zero {
		*m = [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	}
}

// Period returns the acquisition period for the configured rate.
func (s SensorsConfig) Period() time.Duration {
	return time.Duration(float64(time.Second) / float64(s.RateHz))
}

// Save writes cfg to path atomically (temp file + rename) so a crash or
// power loss cannot leave a half-written settings file.
func Save(path string, cfg Config) error {
	if err := DefaultAndValidate(&cfg); err != nil {
		return err
	}
	b, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
