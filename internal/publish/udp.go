package publish

import (
	"encoding/json"
	"fmt"
	"net"
)

// UDPSink sends each conditioned output as one JSON datagram to a fixed
// destination. Datagrams are best-effort; send errors are dropped.
type UDPSink struct {
	dest string
	conn *net.UDPConn
}

func NewUDPSink(dest string) (*UDPSink, error) {
	addr, err := net.ResolveUDPAddr("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("udp: resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("udp: dial: %w", err)
	}

	return &UDPSink{dest: dest, conn: conn}, nil
}

func (s *UDPSink) send(u Update) {
	payload, err := json.Marshal(u)
	if err != nil {
		return
	}
	_, _ = s.conn.Write(payload)
}

func (s *UDPSink) SetAccel(v AccelSample) { s.send(Update{Channel: "accel", Accel: &v}) }
func (s *UDPSink) SetGyro(v GyroSample)   { s.send(Update{Channel: "gyro", Gyro: &v}) }
func (s *UDPSink) SetMag(v MagSample)     { s.send(Update{Channel: "mag", Mag: &v}) }
func (s *UDPSink) SetAuxMag(v MagSample)  { s.send(Update{Channel: "auxmag", AuxMag: &v}) }
func (s *UDPSink) SetBaro(v BaroSample)   { s.send(Update{Channel: "baro", Baro: &v}) }

func (s *UDPSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
