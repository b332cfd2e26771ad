package pipeline

import (
	"math"

	"sensorpipe/internal/calibration"
	"sensorpipe/internal/publish"
	"sensorpipe/internal/rotation"
)

// Standard atmosphere pressure-to-altitude conversion.
const (
	seaLevelPa  = 101325.0
	altScaleM   = 44330.0
	altExponent = 1.0 / 5.255
)

// The per-channel arithmetic below is the calibration contract with
// ground-station-fitted coefficients and must not be rearranged: the accel
// bias is subtracted before scaling while its temp bias is in output units;
// the gyro bias and temp bias are both in post-scale output units.

func (s *Service) handleAccel(mean rotation.Vec3, tempC float64, p *calibration.Params) {
	tempBias := s.accelEst.Update(tempC, p)
	v := rotation.Vec3{
		(mean[0]-p.AccelBias[0])*p.AccelScale[0] - tempBias[0],
		(mean[1]-p.AccelBias[1])*p.AccelScale[1] - tempBias[1],
		(mean[2]-p.AccelBias[2])*p.AccelScale[2] - tempBias[2],
	}
	v = p.R.Apply(v)
	s.sink.SetAccel(publish.AccelSample{
		X:           v[0],
		Y:           v[1],
		Z:           v[2],
		Temperature: tempC,
	})
}

func (s *Service) handleGyro(mean rotation.Vec3, tempC float64, p *calibration.Params) {
	tempBias := s.gyroEst.Update(tempC, p)
	v := rotation.Vec3{
		mean[0]*p.GyroScale[0] - p.GyroBias[0] - tempBias[0],
		mean[1]*p.GyroScale[1] - p.GyroBias[1] - tempBias[1],
		mean[2]*p.GyroScale[2] - p.GyroBias[2] - tempBias[2],
	}
	v = p.R.Apply(v)
	s.sink.SetGyro(publish.GyroSample{
		X:           v[0],
		Y:           v[1],
		Z:           v[2],
		Temperature: tempC,
	})
}

func (s *Service) handleMag(mean rotation.Vec3, aux bool, p *calibration.Params) {
	bias := p.MagBias
	transform := p.MagTransform
	if aux {
		bias = p.AuxMagBias
		transform = p.AuxMagTransform
	}
	v := transform.Apply(mean.Sub(bias))
	sample := publish.MagSample{X: v[0], Y: v[1], Z: v[2], Status: 1}
	if aux {
		s.sink.SetAuxMag(sample)
	} else {
		s.sink.SetMag(sample)
	}
}

func (s *Service) handleBaro(pressPa, tempC float64, p *calibration.Params) {
	pressPa -= s.baroEst.Update(tempC, p)
	alt := altScaleM * (1 - math.Pow(pressPa/seaLevelPa, altExponent))
	// A garbage pressure (negative after correction) yields NaN; drop the
	// sample rather than propagate it.
	if math.IsNaN(alt) {
		return
	}
	s.sink.SetBaro(publish.BaroSample{
		Altitude:    alt,
		Temperature: tempC,
		Pressure:    pressPa,
	})
}
