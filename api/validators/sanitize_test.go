package validators

import "testing"

func TestSanitizeString(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "trims", input: "  12 Main St  ", maxLen: 0, want: "12 Main St"},
		{name: "drops control bytes", input: "leave at\x00 door\x1b", maxLen: 0, want: "leave at door"},
		{name: "keeps newline", input: "line one\nline two", maxLen: 0, want: "line one\nline two"},
		{name: "cuts ascii", input: "abcdef", maxLen: 3, want: "abc"},
		{name: "cuts on rune boundary", input: "cafés", maxLen: 4, want: "caf"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeString(tc.input, tc.maxLen); got != tc.want {
				t.Fatalf("expected %q got %q", tc.want, got)
			}
		})
	}
}

func TestSanitizeOptional(t *testing.T) {
	if SanitizeOptional(nil, 10) != nil {
		t.Fatal("expected nil for nil input")
	}
	blank := "   "
	if SanitizeOptional(&blank, 10) != nil {
		t.Fatal("expected nil for blank input")
	}
	notes := " fragile "
	got := SanitizeOptional(&notes, 10)
	if got == nil || *got != "fragile" {
		t.Fatalf("unexpected %v", got)
	}
}
