package pipeline

import (
	"sensorpipe/internal/rotation"
	"sensorpipe/internal/sensors"
)

// accumulator sums raw samples from one instance over a cycle so the
// pipeline can average them. Sums are int64: even at full-scale int32
// readings a cycle's worth of samples cannot overflow.
type accumulator struct {
	sums    [sensors.MaxPerInstance][3]int64
	tempSum int64
	count   int
}

func (a *accumulator) clear() {
	*a = accumulator{}
}

func (a *accumulator) add(s sensors.Sample) {
	for i := 0; i < s.VectorCount && i < sensors.MaxPerInstance; i++ {
		a.sums[i][0] += int64(s.Vectors[i].X)
		a.sums[i][1] += int64(s.Vectors[i].Y)
		a.sums[i][2] += int64(s.Vectors[i].Z)
	}
	a.tempSum += int64(s.TemperatureRaw)
	a.count++
}

// meanVector averages vector slot i and applies the count-to-unit scale.
// Callers must not invoke it with an empty accumulator.
func (a *accumulator) meanVector(i int, scale float64) rotation.Vec3 {
	n := float64(a.count)
	return rotation.Vec3{
		float64(a.sums[i][0]) * scale / n,
		float64(a.sums[i][1]) * scale / n,
		float64(a.sums[i][2]) * scale / n,
	}
}

// meanTemperature averages the temperature across the cycle, in degrees
// Celsius.
func (a *accumulator) meanTemperature() float64 {
	return float64(a.tempSum) / float64(a.count) / 100
}
