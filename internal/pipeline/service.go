// Package pipeline runs the periodic acquisition loop: it drains sensor
// instances at a fixed rate, averages and calibrates their samples and
// hands the conditioned outputs to the publish sinks.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"sensorpipe/internal/alarms"
	"sensorpipe/internal/calibration"
	"sensorpipe/internal/config"
	"sensorpipe/internal/publish"
	"sensorpipe/internal/sensors"
)

var now = time.Now

type State int

const (
	Idle State = iota
	TestingSensors
	Running
	CriticalFault
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case TestingSensors:
		return "testing"
	case Running:
		return "running"
	case CriticalFault:
		return "critical-fault"
	default:
		return "unknown"
	}
}

type Snapshot struct {
	State     string
	Resets    int64
	UpdatedAt time.Time
}

type Options struct {
	Alarms  *alarms.Registry
	Metrics *Metrics

	// Watchdog is kicked once per loop iteration and between self tests.
	Watchdog func()
}

type Service struct {
	store    *config.Store
	reg      sensors.Registry
	sink     publish.Sink
	alarms   *alarms.Registry
	metrics  *Metrics
	watchdog func()

	// Calibration derived from config; swapped whole on config change so
	// the loop never observes a half-updated set.
	params atomic.Pointer[calibration.Params]

	accelEst calibration.AccelEstimator
	gyroEst  calibration.GyroEstimator
	baroEst  calibration.BaroEstimator

	mu     sync.RWMutex
	state  State
	resets int64

	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(store *config.Store, reg sensors.Registry, sink publish.Sink, opts Options) *Service {
	return &Service{
		store:    store,
		reg:      reg,
		sink:     sink,
		alarms:   opts.Alarms,
		metrics:  opts.Metrics,
		watchdog: opts.Watchdog,
		stopCh:   make(chan struct{}),
	}
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("pipeline: service is nil")
	}
	if s.store == nil || s.reg == nil || s.sink == nil {
		return fmt.Errorf("pipeline: store, registry and sink are required")
	}
	s.params.Store(calibration.Rebuild(s.store.Get()))
	s.store.Subscribe(func() {
		s.params.Store(calibration.Rebuild(s.store.Get()))
	})
	go s.run(ctx)
	return nil
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		State:     s.state.String(),
		Resets:    s.resets,
		UpdatedAt: now().UTC(),
	}
}

func (s *Service) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Service) addReset() {
	s.mu.Lock()
	s.resets++
	s.mu.Unlock()
}

func (s *Service) kickWatchdog() {
	if s.watchdog != nil {
		s.watchdog()
	}
}

func (s *Service) setAlarm(sev alarms.Severity) {
	if s.alarms != nil {
		s.alarms.Set(alarms.Sensors, sev)
	}
}

// instanceState is the per-device loop state.
type instanceState struct {
	inst    sensors.Instance
	primary bool
	scales  [sensors.MaxPerInstance]float64
	acc     accumulator
}

// loopParams derives the cycle cadence from the current configuration.
func (s *Service) loopParams() (time.Duration, int) {
	cfg := s.store.Get().Sensors
	return cfg.Period(), auxMagSkip(cfg.RateHz)
}

// auxMagSkip returns the decimation factor for the auxiliary magnetometer
// so it is processed at roughly 75 Hz regardless of the loop rate.
func auxMagSkip(rateHz int) int {
	r := rateHz
	if r < 76 {
		r = 76
	}
	return (r + 74) / 75
}

func (s *Service) run(ctx context.Context) {
	cfg := s.store.Get().Sensors

	var insts []instanceState
	for _, in := range s.reg.Instances() {
		st := instanceState{
			inst: in,
			// The combined accel+gyro queue paces the loop: it is the one
			// instance worth blocking on when a cycle comes up empty.
			primary: in.Type().HasAccel() && !in.Polled(),
		}
		in.Scales(st.scales[:])
		insts = append(insts, st)
	}

	s.setState(TestingSensors)
	var failed []string
	for i := range insts {
		s.kickWatchdog()
		if !insts[i].inst.SelfTest() {
			log.Printf("pipeline: %s failed self test", insts[i].inst.Name())
			failed = append(failed, insts[i].inst.Name())
		}
	}
	if len(failed) > 0 {
		s.setAlarm(alarms.Critical)
		s.setState(CriticalFault)
		log.Printf("pipeline: halting, %d device(s) unusable: %v", len(failed), failed)
		return
	}

	s.setState(Running)
	log.Printf("pipeline: running %d instance(s) at %d Hz", len(insts), cfg.RateHz)

	auxPhase := 0
	next := now().Add(cfg.Period())
	for {
		// Cadence follows the live configuration, so a settings change to
		// the loop rate takes effect without a restart.
		period, skipEvery := s.loopParams()
		if auxPhase >= skipEvery {
			auxPhase = 0
		}

		start := now()
		errFlag := false
		for i := range insts {
			if s.service(&insts[i], period, auxPhase) {
				errFlag = true
			}
		}
		auxPhase = (auxPhase + 1) % skipEvery
		s.kickWatchdog()
		s.metrics.observeCycle(now().Sub(start))

		if errFlag {
			// Give a freshly reset device one period to come back before
			// the next drain.
			s.setAlarm(alarms.Warning)
			next = next.Add(period)
		} else {
			s.setAlarm(alarms.Clear)
		}

		if !s.waitUntil(ctx, next) {
			return
		}
		if delay := now().Sub(next); delay > period {
			// Too far behind to catch up sample by sample.
			s.metrics.incOverruns()
			next = now()
		}
		next = next.Add(period)
	}
}

// waitUntil sleeps until the absolute deadline so jitter in one cycle does
// not accumulate. It returns false when the service is stopping.
func (s *Service) waitUntil(ctx context.Context, deadline time.Time) bool {
	d := deadline.Sub(now())
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		case <-s.stopCh:
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-s.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

// service drains one instance for this cycle. It reports true when the
// device stalled and was reset.
func (s *Service) service(st *instanceState, period time.Duration, auxPhase int) bool {
	p := s.params.Load()
	typ := st.inst.Type()
	// The auxiliary mag is decimated: skip cycles leave its queue
	// untouched so the processed cycle averages the accumulated backlog.
	if typ.Aux() && auxPhase != 0 {
		return false
	}

	if st.inst.Polled() {
		if !st.inst.Poll() {
			return false
		}
		var buf [4]sensors.Sample
		n := st.inst.Fetch(buf[:])
		if n == 0 {
			return false
		}
		if typ.ThreeAxis() {
			st.acc.clear()
			for i := 0; i < n; i++ {
				st.acc.add(buf[i])
			}
			s.process(st, p)
			return false
		}
		for i := 0; i < n; i++ {
			s.handleBaro(buf[i].Value, buf[i].Temperature(), p)
		}
		s.metrics.addSamples("baro", n)
		return false
	}

	st.acc.clear()
	q := st.inst.Queue()
	for drained := false; !drained; {
		select {
		case sam := <-q:
			st.acc.add(sam)
		default:
			drained = true
		}
	}

	if st.acc.count == 0 && st.primary {
		// The pacing device produced nothing this cycle; give it one more
		// period before declaring it stalled.
		timer := time.NewTimer(period)
		select {
		case sam := <-q:
			timer.Stop()
			st.acc.add(sam)
		case <-timer.C:
			log.Printf("pipeline: %s stalled, resetting", st.inst.Name())
			st.inst.Reset()
			s.metrics.incResets()
			s.addReset()
			return true
		}
	}
	if st.acc.count == 0 {
		return false
	}
	s.process(st, p)
	return false
}

// process averages the cycle's samples and runs the per-channel
// conditioning. Vector slot order for combined devices is accel then gyro.
func (s *Service) process(st *instanceState, p *calibration.Params) {
	typ := st.inst.Type()
	tempC := st.acc.meanTemperature()

	idx := 0
	if typ.HasAccel() {
		s.handleAccel(st.acc.meanVector(idx, st.scales[idx]), tempC, p)
		s.metrics.addSamples("accel", st.acc.count)
		idx++
	}
	if typ.HasGyro() {
		s.handleGyro(st.acc.meanVector(idx, st.scales[idx]), tempC, p)
		s.metrics.addSamples("gyro", st.acc.count)
	}
	if typ.HasMag() {
		channel := "mag"
		if typ.Aux() {
			channel = "auxmag"
		}
		s.handleMag(st.acc.meanVector(0, st.scales[0]), typ.Aux(), p)
		s.metrics.addSamples(channel, st.acc.count)
	}
}
