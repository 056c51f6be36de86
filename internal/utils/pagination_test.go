package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := map[string]struct {
		in   string
		def  int
		want int
	}{
		"empty falls back":    {"", 10, 10},
		"plain int":           {"42", 0, 42},
		"negative int":        {"-13", 1, -13},
		"leading zeros":       {"0012", 99, 12},
		"garbage falls back":  {"x", 5, 5},
		"no trimming":         {" 42", 7, 7},
		"overflow falls back": {"999999999999999999999999", -1, -1},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := AtoiDefault(tc.in, tc.def); got != tc.want {
				t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.in, tc.def, got, tc.want)
			}
		})
	}
}
