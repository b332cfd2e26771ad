package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sensorpipe/internal/config"
)

func testSettingsStore(t *testing.T) SettingsStore {
	t.Helper()
	cfg := config.Config{}
	if err := config.DefaultAndValidate(&cfg); err != nil {
		t.Fatalf("DefaultAndValidate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := config.Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return SettingsStore{ConfigPath: path, Store: config.NewStore(cfg)}
}

func postSettings(t *testing.T, s SettingsStore, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/settings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

const validSettingsBody = `{
	"rate_hz": 250,
	"board_roll_deg": 0,
	"board_pitch_deg": 0,
	"board_yaw_deg": 90,
	"trim_roll_deg": 0.5,
	"trim_pitch_deg": 0
}`

func TestSettings_GetReturnsCurrentConfig(t *testing.T) {
	s := testSettingsStore(t)
	req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var p SettingsPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.RateHz != 500 {
		t.Errorf("rate_hz=%d want default 500", p.RateHz)
	}
}

func TestSettings_PostAppliesAndPersists(t *testing.T) {
	s := testSettingsStore(t)
	rr := postSettings(t, s, validSettingsBody)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	// Effective immediately.
	got := s.Store.Get()
	if got.Sensors.RateHz != 250 || got.Rotation.BoardYawDeg != 90 {
		t.Errorf("store not updated: %+v", got.Sensors)
	}

	// Persisted to disk.
	onDisk, err := config.Load(s.ConfigPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if onDisk.Sensors.RateHz != 250 || onDisk.Rotation.TrimRollDeg != 0.5 {
		t.Errorf("disk not updated: %+v", onDisk.Sensors)
	}
}

func TestSettings_PostRejections(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"unknown key", `{"rate_hz":250,"board_roll_deg":0,"board_pitch_deg":0,"board_yaw_deg":0,"trim_roll_deg":0,"trim_pitch_deg":0,"bogus":1}`},
		{"missing key", `{"rate_hz":250}`},
		{"null value", `{"rate_hz":null,"board_roll_deg":0,"board_pitch_deg":0,"board_yaw_deg":0,"trim_roll_deg":0,"trim_pitch_deg":0}`},
		{"duplicate key", `{"rate_hz":250,"rate_hz":300,"board_roll_deg":0,"board_pitch_deg":0,"board_yaw_deg":0,"trim_roll_deg":0,"trim_pitch_deg":0}`},
		{"trailing data", validSettingsBody + `{}`},
		{"not an object", `[1,2,3]`},
		{"invalid rate", `{"rate_hz":5000,"board_roll_deg":0,"board_pitch_deg":0,"board_yaw_deg":0,"trim_roll_deg":0,"trim_pitch_deg":0}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := testSettingsStore(t)
			rr := postSettings(t, s, c.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status=%d want 400, body=%s", rr.Code, rr.Body.String())
			}
			// Runtime config must be untouched.
			if got := s.Store.Get().Sensors.RateHz; got != 500 {
				t.Fatalf("rejected POST changed store: rate_hz=%d", got)
			}
		})
	}
}

func TestSettings_PostRequiresJSONContentType(t *testing.T) {
	s := testSettingsStore(t)
	req := httptest.NewRequest(http.MethodPost, "/api/settings", strings.NewReader(validSettingsBody))
	req.Header.Set("Content-Type", "text/plain")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status=%d want 415", rr.Code)
	}
}

func TestSettings_SaveFailureRollsBack(t *testing.T) {
	s := testSettingsStore(t)
	// Point the config path at a directory that does not exist so Save fails.
	s.ConfigPath = filepath.Join(s.ConfigPath, "nope", "config.yaml")
	if _, err := os.Stat(filepath.Dir(s.ConfigPath)); err == nil {
		t.Fatalf("expected missing directory")
	}

	rr := postSettings(t, s, validSettingsBody)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want 500, body=%s", rr.Code, rr.Body.String())
	}
	if got := s.Store.Get().Sensors.RateHz; got != 500 {
		t.Fatalf("failed save left store updated: rate_hz=%d", got)
	}
}
