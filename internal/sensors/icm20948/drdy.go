package icm20948

// readySource delivers a notification per data-ready interrupt edge.
type readySource interface {
	C() <-chan struct{}
	Close() error
}
