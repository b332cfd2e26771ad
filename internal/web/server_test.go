package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sensorpipe/internal/alarms"
	"sensorpipe/internal/pipeline"
	"sensorpipe/internal/publish"

	"github.com/gorilla/websocket"
)

type fakeStatus struct {
	snap pipeline.Snapshot
}

func (f fakeStatus) Snapshot() pipeline.Snapshot { return f.snap }

func TestStatusEndpoint(t *testing.T) {
	reg := alarms.NewRegistry()
	reg.Set(alarms.Sensors, alarms.Warning)
	b := publish.NewBroadcaster()
	b.SetAccel(publish.AccelSample{Z: -9.81})

	h := Handler(Deps{
		Status:    fakeStatus{snap: pipeline.Snapshot{State: "running", Resets: 3}},
		Alarms:    reg,
		Broadcast: b,
		Settings:  testSettingsStore(t),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var resp StatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.State != "running" || resp.Resets != 3 {
		t.Errorf("state=%s resets=%d", resp.State, resp.Resets)
	}
	if resp.Alarms["sensors"] != "warning" {
		t.Errorf("alarms=%v", resp.Alarms)
	}
	u, ok := resp.Channels["accel"]
	if !ok || u.Accel == nil || u.Accel.Z != -9.81 {
		t.Errorf("channels=%v", resp.Channels)
	}
}

func TestStatusEndpoint_MethodNotAllowed(t *testing.T) {
	h := Handler(Deps{Settings: testSettingsStore(t)})
	req := httptest.NewRequest(http.MethodPost, "/api/status", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d want 405", rr.Code)
	}
}

func TestRootServesIndex(t *testing.T) {
	h := Handler(Deps{Settings: testSettingsStore(t)})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "sensorpipe") {
		t.Fatalf("index page missing title: %s", rr.Body.String())
	}
}

func TestLiveStreamsUpdates(t *testing.T) {
	b := publish.NewBroadcaster()
	srv := httptest.NewServer(Handler(Deps{
		Broadcast: b,
		Settings:  testSettingsStore(t),
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	b.SetGyro(publish.GyroSample{X: 1.5})

	var u publish.Update
	if err := conn.ReadJSON(&u); err != nil {
		t.Fatalf("read: %v", err)
	}
	if u.Channel != "gyro" || u.Gyro == nil || u.Gyro.X != 1.5 {
		t.Fatalf("update=%+v", u)
	}
}

func TestLiveWithoutBroadcasterIs404(t *testing.T) {
	h := Handler(Deps{Settings: testSettingsStore(t)})
	req := httptest.NewRequest(http.MethodGet, "/api/live", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d want 404", rr.Code)
	}
}
