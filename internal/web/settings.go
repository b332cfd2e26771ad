package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"sensorpipe/internal/config"
)

// SettingsPayload is the wire form of the runtime-adjustable settings:
// the loop rate and the board mounting angles. Full calibration tables
// stay in the YAML config file.
type SettingsPayload struct {
	RateHz        int     `json:"rate_hz"`
	BoardRollDeg  float64 `json:"board_roll_deg"`
	BoardPitchDeg float64 `json:"board_pitch_deg"`
	BoardYawDeg   float64 `json:"board_yaw_deg"`
	TrimRollDeg   float64 `json:"trim_roll_deg"`
	TrimPitchDeg  float64 `json:"trim_pitch_deg"`
}

// SettingsPayloadIn is the strict POST schema.
//
// All fields are required (no partial updates) to avoid hidden defaults and
// prevent accidental schema drift.
type SettingsPayloadIn struct {
	RateHz        *int     `json:"rate_hz"`
	BoardRollDeg  *float64 `json:"board_roll_deg"`
	BoardPitchDeg *float64 `json:"board_pitch_deg"`
	BoardYawDeg   *float64 `json:"board_yaw_deg"`
	TrimRollDeg   *float64 `json:"trim_roll_deg"`
	TrimPitchDeg  *float64 `json:"trim_pitch_deg"`
}

var settingsPostKeys = []string{
	"rate_hz",
	"board_roll_deg",
	"board_pitch_deg",
	"board_yaw_deg",
	"trim_roll_deg",
	"trim_pitch_deg",
}

func decodeSettingsPayloadInStrict(body []byte) (SettingsPayloadIn, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()

	// First pass: stream tokens to enforce strict object rules and detect duplicate keys.
	allowed := make(map[string]struct{}, len(settingsPostKeys))
	for _, k := range settingsPostKeys {
		allowed[k] = struct{}{}
	}
	seen := make(map[string]struct{}, len(settingsPostKeys))

	tok, err := dec.Token()
	if err != nil {
		return SettingsPayloadIn{}, fmt.Errorf("invalid json: %w", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return SettingsPayloadIn{}, errors.New("invalid json: expected object")
	}

	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return SettingsPayloadIn{}, fmt.Errorf("invalid json: %w", err)
		}
		key, ok := kt.(string)
		if !ok {
			return SettingsPayloadIn{}, errors.New("invalid json: expected string key")
		}
		if _, ok := allowed[key]; !ok {
			return SettingsPayloadIn{}, fmt.Errorf("invalid json: unknown key %q", key)
		}
		if _, dup := seen[key]; dup {
			return SettingsPayloadIn{}, fmt.Errorf("invalid json: duplicate key %q", key)
		}
		seen[key] = struct{}{}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return SettingsPayloadIn{}, fmt.Errorf("invalid json: %w", err)
		}
		if strings.TrimSpace(string(raw)) == "null" {
			return SettingsPayloadIn{}, fmt.Errorf("invalid json: %q cannot be null", key)
		}
	}

	end, err := dec.Token()
	if err != nil {
		return SettingsPayloadIn{}, fmt.Errorf("invalid json: %w", err)
	}
	delim, ok = end.(json.Delim)
	if !ok || delim != '}' {
		return SettingsPayloadIn{}, errors.New("invalid json: expected end of object")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return SettingsPayloadIn{}, errors.New("invalid json: trailing data")
	}

	for _, k := range settingsPostKeys {
		if _, ok := seen[k]; !ok {
			return SettingsPayloadIn{}, fmt.Errorf("invalid json: missing required key %q", k)
		}
	}

	// Second pass: decode into the typed struct.
	var out SettingsPayloadIn
	dec2 := json.NewDecoder(bytes.NewReader(body))
	dec2.DisallowUnknownFields()
	if err := dec2.Decode(&out); err != nil {
		return SettingsPayloadIn{}, fmt.Errorf("invalid json: %w", err)
	}
	if err := dec2.Decode(&struct{}{}); err != io.EOF {
		return SettingsPayloadIn{}, errors.New("invalid json: trailing data")
	}

	return out, nil
}

func configToSettingsPayload(cfg config.Config) SettingsPayload {
	return SettingsPayload{
		RateHz:        cfg.Sensors.RateHz,
		BoardRollDeg:  cfg.Rotation.BoardRollDeg,
		BoardPitchDeg: cfg.Rotation.BoardPitchDeg,
		BoardYawDeg:   cfg.Rotation.BoardYawDeg,
		TrimRollDeg:   cfg.Rotation.TrimRollDeg,
		TrimPitchDeg:  cfg.Rotation.TrimPitchDeg,
	}
}

func applySettingsPayload(cfg *config.Config, p SettingsPayloadIn) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	// Strict decode guarantees every pointer is set.
	cfg.Sensors.RateHz = *p.RateHz
	cfg.Rotation.BoardRollDeg = *p.BoardRollDeg
	cfg.Rotation.BoardPitchDeg = *p.BoardPitchDeg
	cfg.Rotation.BoardYawDeg = *p.BoardYawDeg
	cfg.Rotation.TrimRollDeg = *p.TrimRollDeg
	cfg.Rotation.TrimPitchDeg = *p.TrimPitchDeg
	return nil
}

// SettingsStore serves /api/settings backed by the runtime config store
// and the YAML file on disk. Updates become effective immediately through
// the store and are then persisted.
type SettingsStore struct {
	ConfigPath string
	Store      *config.Store
}

func (s SettingsStore) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/settings", func(w http.ResponseWriter, r *http.Request) {
		if s.Store == nil {
			http.Error(w, "settings not available", http.StatusNotImplemented)
			return
		}

		switch r.Method {
		case http.MethodGet:
			payload := configToSettingsPayload(s.Store.Get())
			writeJSON(w, payload)
			return

		case http.MethodPost:
			if ct := strings.TrimSpace(r.Header.Get("Content-Type")); ct != "application/json" {
				http.Error(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
				return
			}

			// Small config payload; cap to prevent unbounded reads.
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MiB
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, fmt.Sprintf("read failed: %v", err), http.StatusBadRequest)
				return
			}
			p, err := decodeSettingsPayloadInStrict(body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			oldCfg := s.Store.Get()
			cfg := oldCfg
			if err := applySettingsPayload(&cfg, p); err != nil {
				http.Error(w, fmt.Sprintf("invalid settings: %v", err), http.StatusBadRequest)
				return
			}

			// Update validates; on success the pipeline rebuilds its
			// calibration before we touch the disk.
			if err := s.Store.Update(cfg); err != nil {
				http.Error(w, fmt.Sprintf("invalid config: %v", err), http.StatusBadRequest)
				return
			}

			if strings.TrimSpace(s.ConfigPath) != "" {
				if err := config.Save(s.ConfigPath, s.Store.Get()); err != nil {
					// Best-effort rollback to keep runtime consistent with disk.
					_ = s.Store.Update(oldCfg)
					http.Error(w, fmt.Sprintf("save failed: %v", err), http.StatusInternalServerError)
					return
				}
			}

			writeJSON(w, configToSettingsPayload(s.Store.Get()))
			return
		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}
