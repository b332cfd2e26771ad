package calibration

import (
	"math"

	"sensorpipe/internal/rotation"
)

// Temperature-dependent bias tracking.
//
// Each channel low-pass filters its reported temperature and periodically
// re-evaluates its calibration polynomial at the filtered value. The
// polynomial forms are the contract with ground-station-fitted coefficients
// and must not be rearranged:
//
//	accel: bias_i = c_i * t
//	gyro:  bias_i = (c_i + c2_i*t) * t
//	baro:  bias   = a + ((d*t + c)*t + b)*t

const (
	lpfCutoffHz = 5.0

	// The baro runs at its own nominal rate, independent of the main loop.
	baroNominalRateHz = 120.0

	gyroAccelRecomputeInterval = 30
	baroRecomputeInterval      = 10
)

// lpfAlpha derives the exponential filter coefficient for one sample period
// at the fixed cutoff.
func lpfAlpha(dt float64) float64 {
	return dt / (dt + 1.0/(2.0*math.Pi*lpfCutoffHz))
}

// tempFilter is the shared filter + recompute-cadence state.
//
// countdown is a deliberately wrapping uint8 and is decremented on every
// update, whether or not calibration is enabled; this keeps the recompute
// phase stable if calibration is switched on mid-flight.
type tempFilter struct {
	filtered  float64
	seeded    bool
	countdown uint8
}

// update folds one temperature reading into the filter. The first reading
// seeds the filter exactly, avoiding a large startup transient. It reports
// whether a bias recompute is due this sample.
func (f *tempFilter) update(temperature, alpha float64, interval uint8, enabled bool) bool {
	if !f.seeded {
		f.filtered = temperature
		f.seeded = true
	}
	f.filtered += alpha * (temperature - f.filtered)

	due := enabled && f.countdown == 0
	if due {
		f.countdown = interval
	}
	f.countdown--
	return due
}

// AccelEstimator tracks the accelerometer temperature bias.
type AccelEstimator struct {
	f    tempFilter
	bias rotation.Vec3
}

// Update processes one averaged temperature reading and returns the current
// bias vector. The bias only changes on recompute samples.
func (e *AccelEstimator) Update(temperature float64, p *Params) rotation.Vec3 {
	alpha := lpfAlpha(1.0 / float64(p.SensorRateHz))
	if e.f.update(temperature, alpha, gyroAccelRecomputeInterval, p.AccelTempCalibrated) {
		t := clamp(e.f.filtered, p.TempExtentMin, p.TempExtentMax)
		e.bias = rotation.Vec3{
			p.AccelTempCoeff[0] * t,
			p.AccelTempCoeff[1] * t,
			p.AccelTempCoeff[2] * t,
		}
	}
	return e.bias
}

// GyroEstimator tracks the gyro temperature bias.
type GyroEstimator struct {
	f    tempFilter
	bias rotation.Vec3
}

func (e *GyroEstimator) Update(temperature float64, p *Params) rotation.Vec3 {
	alpha := lpfAlpha(1.0 / float64(p.SensorRateHz))
	if e.f.update(temperature, alpha, gyroAccelRecomputeInterval, p.GyroTempCalibrated) {
		t := clamp(e.f.filtered, p.TempExtentMin, p.TempExtentMax)
		e.bias = rotation.Vec3{
			(p.GyroTempCoeff[0] + p.GyroTempCoeff2[0]*t) * t,
			(p.GyroTempCoeff[1] + p.GyroTempCoeff2[1]*t) * t,
			(p.GyroTempCoeff[2] + p.GyroTempCoeff2[2]*t) * t,
		}
	}
	return e.bias
}

// BaroEstimator tracks the barometer pressure bias.
type BaroEstimator struct {
	f    tempFilter
	bias float64
}

func (e *BaroEstimator) Update(temperature float64, p *Params) float64 {
	alpha := lpfAlpha(1.0 / baroNominalRateHz)
	if e.f.update(temperature, alpha, baroRecomputeInterval, p.BaroCorrectionEnabled) {
		t := clamp(e.f.filtered, p.BaroExtentMin, p.BaroExtentMax)
		e.bias = p.BaroA + ((p.BaroD*t+p.BaroC)*t+p.BaroB)*t
	}
	return e.bias
}

// Filtered exposes the current filtered temperature (diagnostics only).
func (e *AccelEstimator) Filtered() float64 { return e.f.filtered }

// Filtered exposes the current filtered temperature (diagnostics only).
func (e *GyroEstimator) Filtered() float64 { return e.f.filtered }

// Filtered exposes the current filtered temperature (diagnostics only).
func (e *BaroEstimator) Filtered() float64 { return e.f.filtered }
