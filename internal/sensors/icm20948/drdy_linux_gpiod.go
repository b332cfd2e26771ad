//go:build linux && (arm || arm64)

package icm20948

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// openDataReady watches the given BCM GPIO for rising edges from the
// INT pin, using the Linux GPIO character device (libgpiod).
func openDataReady(pin int) (readySource, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("icm20948: invalid gpio pin %d", pin)
	}

	// On Pi, line names are commonly "GPIO4", etc.
	lineName := fmt.Sprintf("GPIO%d", pin)

	// Try likely chips first (Pi 5 kernel variants can expose header GPIOs on gpiochip0
	// and sometimes additional chips exist).
	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", name))
		}
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		src := &gpiodReady{chip: chip, ch: make(chan struct{}, 1)}
		line, err := chip.RequestLine(offset,
			gpiocdev.AsInput,
			gpiocdev.WithRisingEdge,
			gpiocdev.WithConsumer("sensorpipe-imu"),
			gpiocdev.WithEventHandler(src.handle))
		if err != nil {
			_ = chip.Close()
			continue
		}
		src.line = line
		return src, nil
	}

	return nil, fmt.Errorf("icm20948: gpio line %q not found (or busy)", lineName)
}

type gpiodReady struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
	ch   chan struct{}
}

func (g *gpiodReady) handle(gpiocdev.LineEvent) {
	select {
	case g.ch <- struct{}{}:
	default:
	}
}

func (g *gpiodReady) C() <-chan struct{} { return g.ch }

func (g *gpiodReady) Close() error {
	if g == nil || g.line == nil {
		return nil
	}
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
