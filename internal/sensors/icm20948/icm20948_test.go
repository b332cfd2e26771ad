package icm20948

import (
	"context"
	"errors"
	"testing"
	"time"

	"sensorpipe/internal/sensors"
)

type fakeI2C struct {
	regs   map[byte][]byte
	writes []writeOp

	// Optional overrides.
	readErrFor map[byte]error
}

type writeOp struct {
	reg byte
	val byte
}

func (f *fakeI2C) ReadRegU8(reg byte) (byte, error) {
	if err := f.readErrFor[reg]; err != nil {
		return 0, err
	}
	b := f.regs[reg]
	if len(b) < 1 {
		return 0, errors.New("no reg")
	}
	return b[0], nil
}

func (f *fakeI2C) ReadReg(reg byte, dst []byte) error {
	if err := f.readErrFor[reg]; err != nil {
		return err
	}
	b := f.regs[reg]
	if len(b) < len(dst) {
		return errors.New("short reg")
	}
	copy(dst, b[:len(dst)])
	return nil
}

func (f *fakeI2C) WriteReg(reg, value byte) error {
	f.writes = append(f.writes, writeOp{reg: reg, val: value})
	return nil
}

func silenceSleep(t *testing.T) {
	t.Helper()
	oldSleep := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = oldSleep })
}

func TestNew_WhoAmIMismatch(t *testing.T) {
	silenceSleep(t)

	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {0x00}}}
	_, err := newWithIO(f, Options{RateHz: 500})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestNew_WritesExpectedInitRegisters(t *testing.T) {
	silenceSleep(t)

	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}
	_, err := newWithIO(f, Options{RateHz: 500})
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}

	// Ensure we wrote reset + wake.
	var sawReset, sawWake bool
	for _, w := range f.writes {
		if w.reg == regPwrMgmt1 && w.val == bitReset {
			sawReset = true
		}
		if w.reg == regPwrMgmt1 && w.val == 0x01 {
			sawWake = true
		}
	}
	if !sawReset {
		t.Fatalf("expected reset write to PWR_MGMT_1")
	}
	if !sawWake {
		t.Fatalf("expected wake write to PWR_MGMT_1")
	}

	// Ensure we selected bank 2 and set the sample rate divider for 500 Hz.
	var sawBank2, sawDiv bool
	for _, w := range f.writes {
		if w.reg == regBankSel && w.val == (bank2<<4) {
			sawBank2 = true
		}
		if sawBank2 && w.reg == regGyroSmplrt && w.val == byte(1125/500-1) {
			sawDiv = true
		}
	}
	if !sawBank2 {
		t.Fatalf("expected bank2 select write")
	}
	if !sawDiv {
		t.Fatalf("expected gyro sample rate divider write")
	}
}

func TestRead_PacksVectorsAndTemperature(t *testing.T) {
	silenceSleep(t)

	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}

	// Register block starting at ACCEL_XOUT_H.
	f.regs[regAccelXoutH] = []byte{
		0x40, 0x00, // ax = 16384
		0x00, 0x00, // ay
		0xC0, 0x00, // az = -16384
		0x40, 0x00, // gx = 16384
		0x00, 0x00, // gy
		0xC0, 0x00, // gz = -16384
		0x00, 0x15, // temp raw = 21 -> exactly 21 C
	}

	d, err := newWithIO(f, Options{RateHz: 500})
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}

	s, err := d.read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if s.VectorCount != 2 {
		t.Fatalf("VectorCount=%d want 2", s.VectorCount)
	}
	if s.Vectors[0].X != 16384 || s.Vectors[0].Z != -16384 {
		t.Fatalf("accel counts = %+v", s.Vectors[0])
	}
	if s.Vectors[1].X != 16384 || s.Vectors[1].Z != -16384 {
		t.Fatalf("gyro counts = %+v", s.Vectors[1])
	}
	if s.TemperatureRaw != 2100 {
		t.Fatalf("TemperatureRaw=%d want 2100", s.TemperatureRaw)
	}

	// Applying the advertised scales recovers physical units.
	var scales [sensors.MaxPerInstance]float64
	if n := d.Scales(scales[:]); n != 2 {
		t.Fatalf("Scales returned %d slots", n)
	}
	if ax := float64(s.Vectors[0].X) * scales[0]; ax < 2*9.8 || ax > 2*9.82 {
		t.Fatalf("scaled ax=%v want ~2g in m/s^2", ax)
	}
	if gx := float64(s.Vectors[1].X) * scales[1]; gx < 124.9 || gx > 125.1 {
		t.Fatalf("scaled gx=%v want ~125 dps", gx)
	}
}

func TestPump_FillsQueueAndDropsWhenFull(t *testing.T) {
	silenceSleep(t)

	f := &fakeI2C{regs: map[byte][]byte{
		regWhoAmI:     {whoAmIVal},
		regAccelXoutH: make([]byte, 14),
	}}
	d, err := newWithIO(f, Options{RateHz: 1000})
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	select {
	case <-d.Queue():
	case <-time.After(time.Second):
		t.Fatalf("no sample arrived on queue")
	}
}

func TestReset_CoalescesPendingRequests(t *testing.T) {
	silenceSleep(t)

	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}
	d, err := newWithIO(f, Options{RateHz: 500})
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}

	// Both calls must return without a pump consuming the channel.
	d.Reset()
	d.Reset()
	if len(d.resetCh) != 1 {
		t.Fatalf("resetCh len=%d want 1", len(d.resetCh))
	}
}

func TestSelfTest(t *testing.T) {
	silenceSleep(t)

	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}
	d, err := newWithIO(f, Options{RateHz: 500})
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}
	if !d.SelfTest() {
		t.Fatalf("SelfTest failed on healthy device")
	}

	f.readErrFor = map[byte]error{regWhoAmI: errors.New("bus error")}
	if d.SelfTest() {
		t.Fatalf("SelfTest passed with failing bus")
	}
}
