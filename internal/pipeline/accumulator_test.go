package pipeline

import (
	"testing"

	"sensorpipe/internal/sensors"
)

func TestAccumulator_MeanVector(t *testing.T) {
	var a accumulator
	a.add(sensors.Sample{
		Vectors:        [sensors.MaxPerInstance]sensors.Vec3i{{X: 2, Y: 4, Z: 6}, {X: 10}},
		VectorCount:    2,
		TemperatureRaw: 2400,
	})
	a.add(sensors.Sample{
		Vectors:        [sensors.MaxPerInstance]sensors.Vec3i{{X: 4, Y: 8, Z: 10}, {X: 30}},
		VectorCount:    2,
		TemperatureRaw: 2600,
	})

	if a.count != 2 {
		t.Fatalf("count=%d want 2", a.count)
	}
	v := a.meanVector(0, 1)
	if v[0] != 3 || v[1] != 6 || v[2] != 8 {
		t.Errorf("meanVector(0) = %v", v)
	}
	g := a.meanVector(1, 0.5)
	if g[0] != 10 {
		t.Errorf("meanVector(1) scaled = %v", g)
	}
	if got := a.meanTemperature(); got != 25 {
		t.Errorf("meanTemperature = %v want 25", got)
	}
}

func TestAccumulator_NegativeCountsAverageExactly(t *testing.T) {
	var a accumulator
	for i := 0; i < 4; i++ {
		a.add(sensors.Sample{
			Vectors:     [sensors.MaxPerInstance]sensors.Vec3i{{X: -1000, Y: 1000, Z: -2000}},
			VectorCount: 1,
		})
	}
	v := a.meanVector(0, 1)
	if v[0] != -1000 || v[1] != 1000 || v[2] != -2000 {
		t.Fatalf("mean of identical samples changed: %v", v)
	}
}

func TestAccumulator_Clear(t *testing.T) {
	var a accumulator
	a.add(sensors.Sample{VectorCount: 1, TemperatureRaw: 100})
	a.clear()
	if a.count != 0 || a.tempSum != 0 || a.sums[0][0] != 0 {
		t.Fatalf("clear left state behind: %+v", a)
	}
}
