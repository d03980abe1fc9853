package strings

import "testing"

func TestCount(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0 photos"},
		{1, "1 photo"},
		{12, "12 photos"},
	}
	for _, tt := range tests {
		if got := Count(tt.n, "photo"); got != tt.want {
			t.Errorf("Count(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
