package playback

import (
	"testing"
)

func TestParseRange(t *testing.T) {
	const clipSize = 4096

	tests := []struct {
		name    string
		header  string
		size    int64
		want    *Range
		wantErr error
	}{
		{"no header", "", clipSize, nil, nil},
		{"whole clip", "bytes=0-4095", clipSize, &Range{0, 4095}, nil},
		{"open ended", "bytes=1024-", clipSize, &Range{1024, 4095}, nil},
		{"tail", "bytes=-96", clipSize, &Range{4000, 4095}, nil},
		{"tail longer than clip", "bytes=-9000", clipSize, &Range{0, 4095}, nil},
		{"first byte", "bytes=0-0", clipSize, &Range{0, 0}, nil},
		{"last byte", "bytes=4095-", clipSize, &Range{4095, 4095}, nil},
		{"end clamped", "bytes=4000-99999", clipSize, &Range{4000, 4095}, nil},
		{"first of several", "bytes=10-19, 30-39", clipSize, &Range{10, 19}, nil},
		{"spaces after unit", "bytes= 5-9", clipSize, &Range{5, 9}, nil},

		{"start at size", "bytes=4096-", clipSize, nil, ErrUnsatisfiable},
		{"start past size", "bytes=5000-6000", clipSize, nil, ErrUnsatisfiable},
		{"reversed", "bytes=20-10", clipSize, nil, ErrUnsatisfiable},
		{"empty clip tail", "bytes=-10", 0, nil, ErrUnsatisfiable},
		{"no unit", "0-10", clipSize, nil, ErrInvalidRange},
		{"other unit", "items=0-10", clipSize, nil, ErrInvalidRange},
		{"no dash", "bytes=100", clipSize, nil, ErrInvalidRange},
		{"bad start", "bytes=x-10", clipSize, nil, ErrInvalidRange},
		{"bad end", "bytes=0-y", clipSize, nil, ErrInvalidRange},
		{"zero tail", "bytes=-0", clipSize, nil, ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRange(tt.header, tt.size)
			if err != tt.wantErr {
				t.Fatalf("ParseRange(%q) error = %v, want %v", tt.header, err, tt.wantErr)
			}
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("ParseRange(%q) = %+v, want nil", tt.header, *got)
			case tt.want != nil && got == nil:
				t.Errorf("ParseRange(%q) = nil, want %+v", tt.header, *tt.want)
			case tt.want != nil && *got != *tt.want:
				t.Errorf("ParseRange(%q) = %+v, want %+v", tt.header, *got, *tt.want)
			}
		})
	}
}

func TestRange_Headers(t *testing.T) {
	r := Range{Start: 1024, End: 2047}
	if got := r.ContentLength(); got != 1024 {
		t.Errorf("ContentLength() = %d, want 1024", got)
	}
	if got := r.ContentRange(4096); got != "bytes 1024-2047/4096" {
		t.Errorf("ContentRange() = %q", got)
	}

	one := Range{Start: 0, End: 0}
	if one.ContentLength() != 1 || one.ContentRange(1) != "bytes 0-0/1" {
		t.Errorf("single byte range: %d %q", one.ContentLength(), one.ContentRange(1))
	}
}
