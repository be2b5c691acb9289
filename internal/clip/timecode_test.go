package clip

import (
	"errors"
	"testing"
)

func TestParseOffset(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"01:30", 90, false},
		{"59:59", 3599, false},
		{"01:02:03", 3723, false},
		{" 00:10 ", 10, false},
		{"1:30", 0, true},
		{"00:60", 0, true},
		{"60:00", 0, true},
		{"001:00:00", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseOffset(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidOffset) {
				t.Errorf("ParseOffset(%q) err = %v, want ErrInvalidOffset", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseOffset(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseOffset(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFormatOffset(t *testing.T) {
	tests := map[int]string{
		0:    "00:00",
		59:   "00:59",
		90:   "01:30",
		3599: "59:59",
		3600: "01:00:00",
		3723: "01:02:03",
		-5:   "00:00",
	}
	for in, want := range tests {
		if got := FormatOffset(in); got != want {
			t.Errorf("FormatOffset(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestResolveRange(t *testing.T) {
	r, adjusted := ResolveRange(10, 40)
	if adjusted || r.Duration() != 30 {
		t.Errorf("ResolveRange(10, 40) = %+v adjusted=%v", r, adjusted)
	}

	r, adjusted = ResolveRange(100, 100)
	if !adjusted || r.End != 130 {
		t.Errorf("ResolveRange(100, 100) = %+v adjusted=%v", r, adjusted)
	}

	r, adjusted = ResolveRange(100, 20)
	if !adjusted || r.Start != 100 || r.End != 130 {
		t.Errorf("ResolveRange(100, 20) = %+v adjusted=%v", r, adjusted)
	}
}

func TestPlan(t *testing.T) {
	rng, warning, err := plan(Spec{ClipID: 1})
	if rng != nil || warning != "" || err != nil {
		t.Errorf("empty spec: rng=%v warning=%q err=%v", rng, warning, err)
	}

	rng, warning, err = plan(Spec{ClipID: 2, Start: "00:10"})
	if rng != nil || warning == "" || err != nil {
		t.Errorf("start only: rng=%v warning=%q err=%v", rng, warning, err)
	}

	_, _, err = plan(Spec{ClipID: 3, Start: "00:10", End: "bad"})
	if !errors.Is(err, ErrInvalidOffset) {
		t.Errorf("bad end: err = %v", err)
	}

	rng, warning, err = plan(Spec{ClipID: 4, Start: "01:00", End: "00:30"})
	if err != nil || rng == nil || rng.End != 90 || warning == "" {
		t.Errorf("inverted: rng=%v warning=%q err=%v", rng, warning, err)
	}
}
