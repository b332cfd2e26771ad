// Package sensors defines the contract between hardware drivers and the
// acquisition pipeline. A driver exposes one Instance per physical device;
// the pipeline discovers instances through a Registry and never talks to
// hardware directly.
package sensors

import "strings"

// Type describes what an instance measures. Bits compose: an IMU that
// delivers accelerometer and gyro readings in one sample is GyroAccel.
type Type uint8

const (
	threeAxis Type = 1 << iota
	accelBit
	gyroBit
	magBit
	auxBit
	baroBit
)

const (
	Accel     = threeAxis | accelBit
	Gyro      = threeAxis | gyroBit
	GyroAccel = threeAxis | accelBit | gyroBit
	Mag       = threeAxis | magBit
	AuxMag    = threeAxis | magBit | auxBit
	Baro      = baroBit
)

// ThreeAxis reports whether samples carry integer vectors rather than a
// single scalar value.
func (t Type) ThreeAxis() bool { return t&threeAxis != 0 }

func (t Type) HasAccel() bool { return t&accelBit != 0 }
func (t Type) HasGyro() bool  { return t&gyroBit != 0 }
func (t Type) HasMag() bool   { return t&magBit != 0 }
func (t Type) Aux() bool      { return t&auxBit != 0 }
func (t Type) HasBaro() bool  { return t&baroBit != 0 }

func (t Type) String() string {
	var parts []string
	if t.HasAccel() {
		parts = append(parts, "accel")
	}
	if t.HasGyro() {
		parts = append(parts, "gyro")
	}
	if t.HasMag() {
		if t.Aux() {
			parts = append(parts, "auxmag")
		} else {
			parts = append(parts, "mag")
		}
	}
	if t.HasBaro() {
		parts = append(parts, "baro")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// MaxPerInstance is the number of vectors a single sample can carry. Two
// covers combined accel+gyro devices.
const MaxPerInstance = 2

// Vec3i is a raw device reading in sensor counts, before any scale factor
// is applied.
type Vec3i struct {
	X, Y, Z int32
}

// Sample is one reading from a device. Three-axis instances fill Vectors
// and VectorCount; scalar instances fill Value. TemperatureRaw is the die
// temperature in hundredths of a degree Celsius for every instance type.
type Sample struct {
	Vectors        [MaxPerInstance]Vec3i
	VectorCount    int
	Value          float64
	TemperatureRaw int32
}

// Temperature returns the sample temperature in degrees Celsius.
func (s Sample) Temperature() float64 { return float64(s.TemperatureRaw) / 100 }

// Instance is a single sensor device. Queued instances (Polled() false)
// deliver samples on Queue(); polled instances are asked via Poll() and
// drained with Fetch().
//
// All methods may be called from the pipeline goroutine only, except that
// a driver's own pump goroutine writes to the queue.
type Instance interface {
	// Name identifies the device for logs and alarms, e.g. "icm20948".
	Name() string

	Type() Type

	// Polled reports whether the pipeline must call Poll/Fetch instead of
	// reading Queue.
	Polled() bool

	// Scales writes the count-to-unit conversion factor for each vector
	// slot into dst and returns the number of slots. dst has room for
	// MaxPerInstance entries.
	Scales(dst []float64) int

	// Queue returns the sample channel for queued instances. Polled
	// instances return nil.
	Queue() <-chan Sample

	// Poll reports whether a new measurement is ready on a polled
	// instance.
	Poll() bool

	// Fetch drains ready measurements into dst and returns how many were
	// written.
	Fetch(dst []Sample) int

	// Reset reinitializes a stalled device. It must be safe to call at
	// any point after the driver started.
	Reset()

	// SelfTest verifies the device responds and is the expected part. It
	// is called once before the pipeline enters its run loop.
	SelfTest() bool
}

// Registry enumerates the instances the pipeline should drive. The set is
// fixed after startup.
type Registry interface {
	Instances() []Instance
}

// InstanceList is a fixed slice of instances satisfying Registry.
type InstanceList []Instance

func (l InstanceList) Instances() []Instance { return l }
