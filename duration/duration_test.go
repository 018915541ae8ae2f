package duration

import "testing"

func TestExtract_Subject(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		want    string
		wantOK  bool
	}{
		{"explicit label", "OUTGOING_CALL recording Duration: 5:23", "5:23", true},
		{"label without colon", "Duration 12:05", "12:05", true},
		{"compact style", "call 5m 7s", "5:07", true},
		{"bare colon pair", "recording 3:45", "3:45", true},
		{"bare minutes", "call lasted 5 min", "0:05", true},
		{"bare seconds", "42 sec", "0:42", true},
		{"case insensitive", "dUrAtIoN: 2:15", "2:15", true},
		{"no match", "INCOMING_CALL recording", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.subject, "")
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Extract(%q) = (%q, %v), want (%q, %v)", tt.subject, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestExtract_BodyFallback(t *testing.T) {
	got, ok := Extract("INCOMING_CALL recording", "Your call recording, Duration: 1:02")
	if !ok || got != "1:02" {
		t.Fatalf("Extract body fallback = (%q, %v), want (\"1:02\", true)", got, ok)
	}
}

func TestExtract_SubjectWinsOverBody(t *testing.T) {
	got, ok := Extract("Duration: 5:23", "Duration: 9:59")
	if !ok || got != "5:23" {
		t.Fatalf("Extract = (%q, %v), want subject match \"5:23\"", got, ok)
	}
}

func TestExtract_PatternPriority(t *testing.T) {
	// The explicit label outranks the bare colon pair even when both occur.
	got, ok := Extract("at 10:30 Duration: 2:15", "")
	if !ok || got != "2:15" {
		t.Fatalf("Extract = (%q, %v), want \"2:15\"", got, ok)
	}
}

func TestExtract_SecondsZeroPadded(t *testing.T) {
	got, ok := Extract("Duration: 5:3", "")
	if !ok || got != "5:03" {
		t.Fatalf("Extract = (%q, %v), want \"5:03\"", got, ok)
	}
}
