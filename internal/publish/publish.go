// Package publish carries conditioned sensor outputs from the pipeline to
// consumers: a latest-value broadcaster for the web UI, MQTT, and UDP.
package publish

// AccelSample is a conditioned accelerometer reading in m/s^2.
type AccelSample struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	Temperature float64 `json:"temperature"`
}

// GyroSample is a conditioned rate reading in deg/s.
type GyroSample struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Z           float64 `json:"z"`
	Temperature float64 `json:"temperature"`
}

// MagSample is a conditioned field reading in mGauss.
type MagSample struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
	Status int     `json:"status"`
}

// BaroSample is a conditioned barometer reading.
type BaroSample struct {
	Altitude    float64 `json:"altitude"`
	Temperature float64 `json:"temperature"`
	Pressure    float64 `json:"pressure"`
}

// Sink receives each conditioned output as the pipeline produces it.
// Implementations must not block; slow consumers drop.
type Sink interface {
	SetAccel(AccelSample)
	SetGyro(GyroSample)
	SetMag(MagSample)
	SetAuxMag(MagSample)
	SetBaro(BaroSample)
}

// Multi fans one pipeline output stream to several sinks.
type Multi []Sink

func (m Multi) SetAccel(s AccelSample) {
	for _, sink := range m {
		sink.SetAccel(s)
	}
}

func (m Multi) SetGyro(s GyroSample) {
	for _, sink := range m {
		sink.SetGyro(s)
	}
}

func (m Multi) SetMag(s MagSample) {
	for _, sink := range m {
		sink.SetMag(s)
	}
}

func (m Multi) SetAuxMag(s MagSample) {
	for _, sink := range m {
		sink.SetAuxMag(s)
	}
}

func (m Multi) SetBaro(s BaroSample) {
	for _, sink := range m {
		sink.SetBaro(s)
	}
}
