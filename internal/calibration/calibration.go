package calibration

import (
	"math"

	"sensorpipe/internal/config"
	"sensorpipe/internal/rotation"
)

// Thresholds for deciding whether a fitted temperature calibration is
// actually present: the extent must span more than minExtentSpan degrees and
// at least one coefficient must be non-negligible.
const (
	minExtentSpan = 0.1
	minCoeff      = 1e-9
)

// Params is one immutable calibration snapshot. The acquisition loop reads
// it through an atomic pointer; Rebuild produces a fully-populated value
// before it is ever published, so readers can never observe a torn update.
type Params struct {
	AccelBias  rotation.Vec3
	AccelScale rotation.Vec3
	GyroBias   rotation.Vec3
	GyroScale  rotation.Vec3

	AccelTempCoeff      rotation.Vec3
	GyroTempCoeff       rotation.Vec3
	GyroTempCoeff2      rotation.Vec3
	TempExtentMin       float64
	TempExtentMax       float64
	AccelTempCalibrated bool
	GyroTempCalibrated  bool

	MagBias    rotation.Vec3
	AuxMagBias rotation.Vec3

	// R rotates bias/scale-corrected accel/gyro vectors into the body frame.
	// MagTransform/AuxMagTransform fold the per-channel soft-iron matrix and
	// R into a single product.
	R               rotation.Mat3
	MagTransform    rotation.Mat3
	AuxMagTransform rotation.Mat3

	BaroA, BaroB, BaroC, BaroD   float64
	BaroExtentMin, BaroExtentMax float64
	BaroCorrectionEnabled        bool

	// SensorRateHz is carried so the temperature filters can derive their
	// sample period from the same snapshot the rest of the cycle uses.
	SensorRateHz int
}

func triple(t config.AxisTriple) rotation.Vec3 {
	return rotation.Vec3{t.X, t.Y, t.Z}
}

func anyAbove(min float64, vals ...float64) bool {
	for _, v := range vals {
		if math.Abs(v) > min {
			return true
		}
	}
	return false
}

const degToRad = math.Pi / 180

// Rebuild computes a complete calibration snapshot from the configuration.
// It is a pure function: safe to call from a settings-change callback while
// the acquisition loop keeps reading the previous snapshot.
func Rebuild(cfg config.Config) *Params {
	cal := cfg.Calibration

	p := &Params{
		AccelBias:      triple(cal.Accel.Bias),
		AccelScale:     triple(cal.Accel.Scale),
		GyroBias:       triple(cal.Gyro.Bias),
		GyroScale:      triple(cal.Gyro.Scale),
		AccelTempCoeff: triple(cal.Accel.TempCoeff),
		GyroTempCoeff:  triple(cal.Gyro.TempCoeff),
		GyroTempCoeff2: triple(cal.Gyro.TempCoeff2),
		TempExtentMin:  cal.TempExtent.Min,
		TempExtentMax:  cal.TempExtent.Max,
		MagBias:        triple(cal.Mag.Bias),
		AuxMagBias:     triple(cal.AuxMag.Bias),
		BaroA:          cal.Baro.A,
		BaroB:          cal.Baro.B,
		BaroC:          cal.Baro.C,
		BaroD:          cal.Baro.D,
		BaroExtentMin:  cal.Baro.Extent.Min,
		BaroExtentMax:  cal.Baro.Extent.Max,
		SensorRateHz:   cfg.Sensors.RateHz,
	}

	span := cal.TempExtent.Max - cal.TempExtent.Min
	p.AccelTempCalibrated = span > minExtentSpan &&
		anyAbove(minCoeff, cal.Accel.TempCoeff.X, cal.Accel.TempCoeff.Y, cal.Accel.TempCoeff.Z)
	p.GyroTempCalibrated = span > minExtentSpan &&
		anyAbove(minCoeff,
			cal.Gyro.TempCoeff.X, cal.Gyro.TempCoeff.Y, cal.Gyro.TempCoeff.Z,
			cal.Gyro.TempCoeff2.X, cal.Gyro.TempCoeff2.Y, cal.Gyro.TempCoeff2.Z)

	baroSpan := cal.Baro.Extent.Max - cal.Baro.Extent.Min
	p.BaroCorrectionEnabled = baroSpan > minExtentSpan &&
		anyAbove(minCoeff, cal.Baro.A, cal.Baro.B, cal.Baro.C, cal.Baro.D)

	rot := cfg.Rotation
	p.R = rotation.Compose(
		rot.BoardRollDeg*degToRad,
		rot.BoardPitchDeg*degToRad,
		rot.BoardYawDeg*degToRad,
		rot.TrimRollDeg*degToRad,
		rot.TrimPitchDeg*degToRad,
	)
	p.MagTransform = rotation.Mat3(cal.Mag.Transform).Mul(p.R)
	p.AuxMagTransform = rotation.Mat3(cal.AuxMag.Transform).Mul(p.R)

	return p
}

// clamp bounds v into [min, max]; out-of-range temperatures use the nearest
// calibrated extreme.
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
