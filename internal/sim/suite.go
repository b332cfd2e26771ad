// Package sim provides a deterministic sensor suite for development and
// testing without hardware. Every instance produces smooth waveforms from
// an internal sample counter, so runs are reproducible.
package sim

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"sensorpipe/internal/sensors"
)

const (
	defaultRateHz     = 500
	defaultQueueDepth = 32

	// Count-to-unit factors matching a 4g/250dps IMU and a mGauss
	// magnetometer, so simulated registers look like real ones.
	accelScale = 4.0 * 9.80665 / 32768.0
	gyroScale  = 250.0 / 32768.0
	magScale   = 0.15
)

type SuiteConfig struct {
	RateHz     int
	QueueDepth int

	// FailSelfTest makes every instance report an unhealthy device.
	FailSelfTest bool
}

// Suite is the full simulated sensor fit: combined accel+gyro, primary
// and auxiliary magnetometers, and a barometer.
type Suite struct {
	IMU    *IMU
	Mag    *Mag
	AuxMag *Mag
	Baro   *Baro
}

func NewSuite(cfg SuiteConfig) *Suite {
	if cfg.RateHz <= 0 {
		cfg.RateHz = defaultRateHz
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	return &Suite{
		IMU:    newIMU(cfg),
		Mag:    newMag(cfg, false),
		AuxMag: newMag(cfg, true),
		Baro:   newBaro(cfg),
	}
}

func (s *Suite) Instances() []sensors.Instance {
	return []sensors.Instance{s.IMU, s.Mag, s.AuxMag, s.Baro}
}

// Start launches the pump goroutines for the queued instances. Polled
// instances need no pump.
func (s *Suite) Start(ctx context.Context) {
	s.IMU.start(ctx)
	s.Mag.start(ctx)
	s.AuxMag.start(ctx)
}

// IMU is a queued accel+gyro instance. Accel holds 1g on Z with a small
// sway on X; gyro is a slow sinusoidal rate on all axes.
type IMU struct {
	rateHz   int
	fail     bool
	queue    chan sensors.Sample
	sampleNo uint64
	resets   atomic.Int64
}

var _ sensors.Instance = (*IMU)(nil)

func newIMU(cfg SuiteConfig) *IMU {
	return &IMU{
		rateHz: cfg.RateHz,
		fail:   cfg.FailSelfTest,
		queue:  make(chan sensors.Sample, cfg.QueueDepth),
	}
}

func (d *IMU) start(ctx context.Context) {
	go pump(ctx, d.rateHz, d.queue, d.next)
}

func (d *IMU) next() sensors.Sample {
	t := float64(d.sampleNo) / float64(d.rateHz)
	d.sampleNo++

	w := 2 * math.Pi * 0.1 * t // 0.1 Hz sway
	ax := 0.2 * math.Sin(w) * 9.80665
	az := -9.80665
	gx := 5 * math.Sin(w) // deg/s

	return sensors.Sample{
		Vectors: [sensors.MaxPerInstance]sensors.Vec3i{
			{X: int32(ax / accelScale), Y: 0, Z: int32(az / accelScale)},
			{X: int32(gx / gyroScale), Y: 0, Z: 0},
		},
		VectorCount:    2,
		TemperatureRaw: 2500 + int32(100*math.Sin(w/10)),
	}
}

func (d *IMU) Name() string                   { return "sim-imu" }
func (d *IMU) Type() sensors.Type             { return sensors.GyroAccel }
func (d *IMU) Polled() bool                   { return false }
func (d *IMU) Queue() <-chan sensors.Sample   { return d.queue }
func (d *IMU) Poll() bool                     { return false }
func (d *IMU) Fetch(dst []sensors.Sample) int { return 0 }
func (d *IMU) Reset()                         { d.resets.Add(1) }
func (d *IMU) SelfTest() bool                 { return !d.fail }

func (d *IMU) Scales(dst []float64) int {
	dst[0] = accelScale
	dst[1] = gyroScale
	return 2
}

// Resets reports how many times the pipeline asked for a device reset.
func (d *IMU) Resets() int64 { return d.resets.Load() }

// Mag is a queued magnetometer; the auxiliary variant reports the same
// field with a slight offset.
type Mag struct {
	rateHz   int
	aux      bool
	fail     bool
	queue    chan sensors.Sample
	sampleNo uint64
}

var _ sensors.Instance = (*Mag)(nil)

func newMag(cfg SuiteConfig, aux bool) *Mag {
	return &Mag{
		rateHz: cfg.RateHz,
		aux:    aux,
		fail:   cfg.FailSelfTest,
		queue:  make(chan sensors.Sample, cfg.QueueDepth),
	}
}

func (d *Mag) start(ctx context.Context) {
	go pump(ctx, d.rateHz, d.queue, d.next)
}

func (d *Mag) next() sensors.Sample {
	t := float64(d.sampleNo) / float64(d.rateHz)
	d.sampleNo++

	// A nominal horizontal field of ~200 mGauss rotating slowly.
	w := 2 * math.Pi * 0.05 * t
	bx := 200 * math.Cos(w)
	by := 200 * math.Sin(w)
	bz := -430.0
	if d.aux {
		bx += 10
	}

	return sensors.Sample{
		Vectors: [sensors.MaxPerInstance]sensors.Vec3i{
			{X: int32(bx / magScale), Y: int32(by / magScale), Z: int32(bz / magScale)},
		},
		VectorCount:    1,
		TemperatureRaw: 2500,
	}
}

func (d *Mag) Name() string {
	if d.aux {
		return "sim-auxmag"
	}
	return "sim-mag"
}

func (d *Mag) Type() sensors.Type {
	if d.aux {
		return sensors.AuxMag
	}
	return sensors.Mag
}

func (d *Mag) Polled() bool                   { return false }
func (d *Mag) Queue() <-chan sensors.Sample   { return d.queue }
func (d *Mag) Poll() bool                     { return false }
func (d *Mag) Fetch(dst []sensors.Sample) int { return 0 }
func (d *Mag) Reset()                         {}
func (d *Mag) SelfTest() bool                 { return !d.fail }

func (d *Mag) Scales(dst []float64) int {
	dst[0] = magScale
	return 1
}

// Baro is a polled barometer around standard sea-level pressure with a
// slow breathing oscillation.
type Baro struct {
	fail     bool
	sampleNo uint64
}

var _ sensors.Instance = (*Baro)(nil)

func newBaro(cfg SuiteConfig) *Baro {
	return &Baro{fail: cfg.FailSelfTest}
}

func (d *Baro) Name() string                 { return "sim-baro" }
func (d *Baro) Type() sensors.Type           { return sensors.Baro }
func (d *Baro) Polled() bool                 { return true }
func (d *Baro) Queue() <-chan sensors.Sample { return nil }
func (d *Baro) Scales(dst []float64) int     { return 0 }
func (d *Baro) Reset()                       {}
func (d *Baro) SelfTest() bool               { return !d.fail }

func (d *Baro) Poll() bool { return true }

func (d *Baro) Fetch(dst []sensors.Sample) int {
	if len(dst) == 0 {
		return 0
	}
	t := float64(d.sampleNo) / 120.0
	d.sampleNo++

	w := 2 * math.Pi * 0.02 * t
	dst[0] = sensors.Sample{
		Value:          101325 + 50*math.Sin(w),
		TemperatureRaw: 2500,
	}
	return 1
}

// pump emits one generated sample per period until ctx is cancelled,
// dropping when the consumer falls behind.
func pump(ctx context.Context, rateHz int, queue chan<- sensors.Sample, next func() sensors.Sample) {
	period := time.Second / time.Duration(rateHz)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case queue <- next():
			default:
			}
		}
	}
}
