package patient

import "testing"

func TestContainsPattern_EscapesWildcards(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "nasser", `%nasser%`},
		{"percent", "100%", `%100\%%`},
		{"underscore", "a_b", `%a\_b%`},
		{"backslash", `a\b`, `%a\\b%`},
		{"only wildcards", "%_", `%\%\_%`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := containsPattern(tt.in); got != tt.want {
				t.Errorf("containsPattern(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
