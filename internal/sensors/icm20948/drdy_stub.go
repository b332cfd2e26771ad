//go:build !(linux && (arm || arm64))

package icm20948

import "fmt"

func openDataReady(pin int) (readySource, error) {
	return nil, fmt.Errorf("icm20948: gpio interrupts not supported on this platform")
}
