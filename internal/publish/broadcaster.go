package publish

import (
	"sync"
	"time"
)

// Update is one broadcast event. Channel names the output it carries; the
// matching pointer field is set, the rest are nil.
type Update struct {
	Channel       string       `json:"channel"`
	Accel         *AccelSample `json:"accel,omitempty"`
	Gyro          *GyroSample  `json:"gyro,omitempty"`
	Mag           *MagSample   `json:"mag,omitempty"`
	AuxMag        *MagSample   `json:"auxmag,omitempty"`
	Baro          *BaroSample  `json:"baro,omitempty"`
	LastUpdateUTC string       `json:"last_update_utc"`
}

// Broadcaster fans high-rate pipeline output to any listeners (e.g. the
// live websocket). It keeps the most recent value per channel so new
// subscribers get an immediate sample. Slow subscribers drop updates.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[int]chan Update
	nextID int
	last   map[string]Update
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[int]chan Update),
		last: make(map[string]Update),
	}
}

func (b *Broadcaster) Subscribe(buffer int) (int, <-chan Update) {
	if b == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Update, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	recent := make([]Update, 0, len(b.last))
	for _, u := range b.last {
		recent = append(recent, u)
	}
	b.mu.Unlock()
	for _, u := range recent {
		select {
		case ch <- u:
		default:
		}
	}
	return id, ch
}

func (b *Broadcaster) Unsubscribe(id int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) publish(u Update) {
	if b == nil {
		return
	}
	if u.LastUpdateUTC == "" {
		u.LastUpdateUTC = time.Now().UTC().Format(time.RFC3339Nano)
	}
	b.mu.RLock()
	subs := make([]chan Update, 0, len(b.subs))
	for _, ch := range b.subs {
		subs = append(subs, ch)
	}
	b.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- u:
		default:
		}
	}
	b.mu.Lock()
	b.last[u.Channel] = u
	b.mu.Unlock()
}

// Latest returns the most recent update for a channel, if one was
// published.
func (b *Broadcaster) Latest(channel string) (Update, bool) {
	if b == nil {
		return Update{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	u, ok := b.last[channel]
	return u, ok
}

func (b *Broadcaster) SetAccel(s AccelSample) {
	b.publish(Update{Channel: "accel", Accel: &s})
}

func (b *Broadcaster) SetGyro(s GyroSample) {
	b.publish(Update{Channel: "gyro", Gyro: &s})
}

func (b *Broadcaster) SetMag(s MagSample) {
	b.publish(Update{Channel: "mag", Mag: &s})
}

func (b *Broadcaster) SetAuxMag(s MagSample) {
	b.publish(Update{Channel: "auxmag", AuxMag: &s})
}

func (b *Broadcaster) SetBaro(s BaroSample) {
	b.publish(Update{Channel: "baro", Baro: &s})
}
