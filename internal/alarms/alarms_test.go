package alarms

import "testing"

func TestSetGetClear(t *testing.T) {
	r := NewRegistry()
	if got := r.Get(Sensors); got != Clear {
		t.Fatalf("unset alarm = %v, want clear", got)
	}
	r.Set(Sensors, Warning)
	if got := r.Get(Sensors); got != Warning {
		t.Fatalf("after Set = %v, want warning", got)
	}
	r.Set(Sensors, Critical)
	if got := r.Get(Sensors); got != Critical {
		t.Fatalf("after escalation = %v, want critical", got)
	}
	r.ClearAlarm(Sensors)
	if got := r.Get(Sensors); got != Clear {
		t.Fatalf("after clear = %v, want clear", got)
	}
	if snap := r.Snapshot(); len(snap) != 0 {
		t.Fatalf("cleared alarm still in snapshot: %v", snap)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	r := NewRegistry()
	r.Set(Sensors, Warning)
	snap := r.Snapshot()
	snap[Sensors] = Critical
	if got := r.Get(Sensors); got != Warning {
		t.Fatalf("mutating snapshot leaked into registry: %v", got)
	}
}

func TestSeverityString(t *testing.T) {
	for sev, want := range map[Severity]string{
		Clear:       "clear",
		Warning:     "warning",
		Critical:    "critical",
		Severity(9): "unknown",
	} {
		if got := sev.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", sev, got, want)
		}
	}
}
