package redis

import "testing"

func TestParseRangeString(t *testing.T) {
	cases := []struct {
		in        string
		wantStart uint64
		wantEnd   uint64
		wantErr   bool
	}{
		{"100-200", 100, 200, false},
		{"0-0", 0, 0, false},
		{"200-100", 0, 0, true},
		{"not-a-range", 0, 0, true},
		{"100", 0, 0, true},
	}
	for _, c := range cases {
		start, end, err := ParseRangeString(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("%q: expected error, got none", c.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", c.in, err)
		}
		if start != c.wantStart || end != c.wantEnd {
			t.Errorf("%q: got (%d, %d), want (%d, %d)", c.in, start, end, c.wantStart, c.wantEnd)
		}
	}
}
