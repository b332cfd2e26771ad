package publish

import "testing"

type recordingSink struct {
	accel  []AccelSample
	gyro   []GyroSample
	mag    []MagSample
	auxMag []MagSample
	baro   []BaroSample
}

func (r *recordingSink) SetAccel(s AccelSample) { r.accel = append(r.accel, s) }
func (r *recordingSink) SetGyro(s GyroSample)   { r.gyro = append(r.gyro, s) }
func (r *recordingSink) SetMag(s MagSample)     { r.mag = append(r.mag, s) }
func (r *recordingSink) SetAuxMag(s MagSample)  { r.auxMag = append(r.auxMag, s) }
func (r *recordingSink) SetBaro(s BaroSample)   { r.baro = append(r.baro, s) }

func TestMultiFanout(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	m := Multi{a, b}

	m.SetAccel(AccelSample{X: 1})
	m.SetGyro(GyroSample{Y: 2})
	m.SetMag(MagSample{Z: 3})
	m.SetAuxMag(MagSample{X: 4})
	m.SetBaro(BaroSample{Pressure: 101325})

	for _, r := range []*recordingSink{a, b} {
		if len(r.accel) != 1 || r.accel[0].X != 1 {
			t.Errorf("accel not delivered: %+v", r.accel)
		}
		if len(r.gyro) != 1 || r.gyro[0].Y != 2 {
			t.Errorf("gyro not delivered: %+v", r.gyro)
		}
		if len(r.mag) != 1 || len(r.auxMag) != 1 {
			t.Errorf("mag/auxmag not delivered")
		}
		if len(r.baro) != 1 || r.baro[0].Pressure != 101325 {
			t.Errorf("baro not delivered: %+v", r.baro)
		}
	}
}

func TestBroadcasterDeliversToSubscriber(t *testing.T) {
	b := NewBroadcaster()
	id, ch := b.Subscribe(4)
	defer b.Unsubscribe(id)

	b.SetAccel(AccelSample{X: 9.81})

	select {
	case u := <-ch:
		if u.Channel != "accel" || u.Accel == nil || u.Accel.X != 9.81 {
			t.Fatalf("unexpected update: %+v", u)
		}
		if u.LastUpdateUTC == "" {
			t.Fatalf("timestamp not stamped")
		}
	default:
		t.Fatalf("no update delivered")
	}
}

func TestBroadcasterReplaysLatestOnSubscribe(t *testing.T) {
	b := NewBroadcaster()
	b.SetBaro(BaroSample{Altitude: 120})

	id, ch := b.Subscribe(4)
	defer b.Unsubscribe(id)

	select {
	case u := <-ch:
		if u.Channel != "baro" || u.Baro == nil || u.Baro.Altitude != 120 {
			t.Fatalf("unexpected replayed update: %+v", u)
		}
	default:
		t.Fatalf("latest value not replayed to new subscriber")
	}
}

func TestBroadcasterDropsWhenSubscriberFull(t *testing.T) {
	b := NewBroadcaster()
	id, ch := b.Subscribe(1)
	defer b.Unsubscribe(id)

	b.SetGyro(GyroSample{X: 1})
	b.SetGyro(GyroSample{X: 2}) // dropped, buffer full

	u := <-ch
	if u.Gyro == nil || u.Gyro.X != 1 {
		t.Fatalf("unexpected first update: %+v", u)
	}
	select {
	case u := <-ch:
		t.Fatalf("expected drop, got %+v", u)
	default:
	}

	// The latest value still reflects the dropped update.
	latest, ok := b.Latest("gyro")
	if !ok || latest.Gyro.X != 2 {
		t.Fatalf("Latest = %+v, %v", latest, ok)
	}
}

func TestBroadcasterNilSafe(t *testing.T) {
	var b *Broadcaster
	b.SetAccel(AccelSample{})
	if id, ch := b.Subscribe(1); id != 0 || ch != nil {
		t.Fatalf("nil broadcaster Subscribe = %d, %v", id, ch)
	}
	b.Unsubscribe(0)
	if _, ok := b.Latest("accel"); ok {
		t.Fatalf("nil broadcaster has a latest value")
	}
}
