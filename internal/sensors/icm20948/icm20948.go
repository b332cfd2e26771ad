package icm20948

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"sensorpipe/internal/i2c"
	"sensorpipe/internal/sensors"
)

var sleep = time.Sleep

// ICM-20948 accel+gyro driver.
//
// The device streams combined accel/gyro/temperature samples into a queue
// at the configured output data rate. A data-ready GPIO interrupt drives
// the pump when a pin is configured; otherwise a timer approximates the
// ODR. Register choices mirror the ICM-20948 register map:
// - WHO_AM_I at 0x00 should return 0xEA.

const (
	addrDefault = 0x68

	regWhoAmI  = 0x00
	whoAmIVal  = 0xEA
	regBankSel = 0x7F

	// Bank 0.
	regPwrMgmt1   = 0x06
	bitReset      = 0x80
	regIntPinCfg  = 0x0F
	regIntEnable1 = 0x11 // RAW_DATA_0_RDY_EN
	regAccelXoutH = 0x2D // contiguous accel+gyro+temp block

	// Bank 2.
	bank2           = 2
	regGyroSmplrt   = 0x00
	regGyroConfig   = 0x01
	regAccelSmplrt2 = 0x11
	regAccelConfig  = 0x14

	fsGyro250dps = 0x00
	fsAccel4g    = 0x02

	// Internal sample rate the dividers are derived from.
	baseRateHz = 1125
)

const (
	gravity = 9.80665

	// Count-to-unit factors at the configured full-scale ranges.
	accelScale = 4.0 * gravity / 32768.0 // m/s^2 per count
	gyroScale  = 250.0 / 32768.0        // deg/s per count

	queueDepth = 32
)

type Options struct {
	// RateHz is the output data rate. Values above the internal base rate
	// are clamped.
	RateHz int

	// InterruptPin is the BCM GPIO number wired to the INT pin, or 0 to
	// poll on a timer.
	InterruptPin int
}

type Device struct {
	mu      sync.Mutex // serializes bus transactions
	dev     regIO
	curBank byte

	rateHz  int
	queue   chan sensors.Sample
	resetCh chan struct{}
	ready   readySource
}

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

var _ sensors.Instance = (*Device)(nil)

func DefaultAddress() uint16 { return addrDefault }

func New(dev *i2c.Dev, opts Options) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("icm20948: dev is nil")
	}
	return newWithIO(dev, opts)
}

func newWithIO(dev regIO, opts Options) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("icm20948: dev is nil")
	}
	rate := opts.RateHz
	if rate <= 0 {
		rate = 500
	}
	if rate > baseRateHz {
		rate = baseRateHz
	}
	d := &Device{
		dev:     dev,
		curBank: 0xFF,
		rateHz:  rate,
		queue:   make(chan sensors.Sample, queueDepth),
		resetCh: make(chan struct{}, 1),
	}

	who, err := d.dev.ReadRegU8(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("icm20948: whoami read failed: %w", err)
	}
	if who != whoAmIVal {
		return nil, fmt.Errorf("icm20948: whoami=0x%02X want 0x%02X", who, whoAmIVal)
	}

	if err := d.init(); err != nil {
		return nil, err
	}

	if opts.InterruptPin > 0 {
		ready, err := openDataReady(opts.InterruptPin)
		if err != nil {
			log.Printf("icm20948: data-ready pin unavailable, using timer: %v", err)
		} else {
			d.ready = ready
		}
	}

	return d, nil
}

func (d *Device) init() error {
	// Bank 0.
	if err := d.setBank(0); err != nil {
		return err
	}

	// Reset.
	if err := d.dev.WriteReg(regPwrMgmt1, bitReset); err != nil {
		return fmt.Errorf("icm20948: reset failed: %w", err)
	}
	sleep(100 * time.Millisecond)

	// Wake + PLL clock.
	// From ICM-20948 register map: CLKSEL[2:0] should be 1..5 for full gyro performance.
	if err := d.dev.WriteReg(regPwrMgmt1, 0x01); err != nil {
		return fmt.Errorf("icm20948: wake failed: %w", err)
	}
	sleep(10 * time.Millisecond)

	// Route data-ready to INT1, active high, pulsed.
	_ = d.dev.WriteReg(regIntPinCfg, 0x00)
	_ = d.dev.WriteReg(regIntEnable1, 0x01)

	// Configure accel/gyro full-scale and sample rates.
	if err := d.setBank(bank2); err != nil {
		return err
	}

	// Sample rate divider: odr = 1125/(div+1).
	div := byte(baseRateHz/d.rateHz - 1)
	_ = d.dev.WriteReg(regGyroSmplrt, div)
	_ = d.dev.WriteReg(regAccelSmplrt2, div)

	if err := d.dev.WriteReg(regGyroConfig, fsGyro250dps); err != nil {
		return fmt.Errorf("icm20948: gyro config failed: %w", err)
	}
	if err := d.dev.WriteReg(regAccelConfig, fsAccel4g); err != nil {
		return fmt.Errorf("icm20948: accel config failed: %w", err)
	}

	// Return to bank 0 for reads.
	return d.setBank(0)
}

func (d *Device) setBank(bank byte) error {
	if d.curBank == bank {
		return nil
	}
	if err := d.dev.WriteReg(regBankSel, bank<<4); err != nil {
		return fmt.Errorf("icm20948: set bank %d failed: %w", bank, err)
	}
	d.curBank = bank
	return nil
}

// read fetches one accel+gyro+temperature sample. The three sensors share
// one contiguous register block, so a single burst read is coherent.
func (d *Device) read() (sensors.Sample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.setBank(0); err != nil {
		return sensors.Sample{}, err
	}

	buf := make([]byte, 14)
	if err := d.dev.ReadReg(regAccelXoutH, buf); err != nil {
		return sensors.Sample{}, fmt.Errorf("icm20948: read sensors failed: %w", err)
	}

	ax := int16(buf[0])<<8 | int16(buf[1])
	ay := int16(buf[2])<<8 | int16(buf[3])
	az := int16(buf[4])<<8 | int16(buf[5])
	gx := int16(buf[6])<<8 | int16(buf[7])
	gy := int16(buf[8])<<8 | int16(buf[9])
	gz := int16(buf[10])<<8 | int16(buf[11])
	tr := int16(buf[12])<<8 | int16(buf[13])

	// Datasheet: T = (raw - 21)/333.87 + 21 degrees C.
	tempC := (float64(tr)-21)/333.87 + 21

	return sensors.Sample{
		Vectors: [sensors.MaxPerInstance]sensors.Vec3i{
			{X: int32(ax), Y: int32(ay), Z: int32(az)},
			{X: int32(gx), Y: int32(gy), Z: int32(gz)},
		},
		VectorCount:    2,
		TemperatureRaw: int32(tempC * 100),
	}, nil
}

func (d *Device) reinit() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.curBank = 0xFF
	if err := d.init(); err != nil {
		log.Printf("icm20948: reinit failed: %v", err)
	}
}

// Start launches the pump goroutine that fills the sample queue. It runs
// until ctx is cancelled.
func (d *Device) Start(ctx context.Context) {
	go d.pump(ctx)
}

func (d *Device) pump(ctx context.Context) {
	period := time.Second / time.Duration(d.rateHz)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	if d.ready != nil {
		defer d.ready.Close()
	}

	for {
		var tick <-chan time.Time
		var irq <-chan struct{}
		if d.ready != nil {
			irq = d.ready.C()
		} else {
			tick = ticker.C
		}

		select {
		case <-ctx.Done():
			return
		case <-d.resetCh:
			d.reinit()
			continue
		case <-tick:
		case <-irq:
		}

		s, err := d.read()
		if err != nil {
			continue
		}
		select {
		case d.queue <- s:
		default:
			// Consumer behind; drop rather than block the pump.
		}
	}
}

func (d *Device) Name() string       { return "icm20948" }
func (d *Device) Type() sensors.Type { return sensors.GyroAccel }
func (d *Device) Polled() bool       { return false }

func (d *Device) Scales(dst []float64) int {
	dst[0] = accelScale
	dst[1] = gyroScale
	return 2
}

func (d *Device) Queue() <-chan sensors.Sample { return d.queue }

func (d *Device) Poll() bool { return false }

func (d *Device) Fetch(dst []sensors.Sample) int { return 0 }

// Reset asks the pump to reinitialize the device. Safe to call while the
// pump is running; coalesces if a reset is already pending.
func (d *Device) Reset() {
	select {
	case d.resetCh <- struct{}{}:
	default:
	}
}

func (d *Device) SelfTest() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	who, err := d.dev.ReadRegU8(regWhoAmI)
	return err == nil && who == whoAmIVal
}
