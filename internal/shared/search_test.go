package shared

import "testing"

func TestEscapeLike(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"50%_off", `50\%\_off`},
		{`back\slash`, `back\\slash`},
		{"", ""},
	}
	for _, tc := range cases {
		if got := EscapeLike(tc.in); got != tc.want {
			t.Fatalf("EscapeLike(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
