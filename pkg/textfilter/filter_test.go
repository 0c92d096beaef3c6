package textfilter

import "testing"

func TestSanitize(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "single word",
			input:    "What the hell is behind that door?",
			expected: "What the heck is behind that door?",
		},
		{
			name:     "multiple words",
			input:    "This is damn crap!",
			expected: "This is dang crud!",
		},
		{
			name:     "uppercase preserved",
			input:    "DAMN that dragon!",
			expected: "DANG that dragon!",
		},
		{
			name:     "title case preserved",
			input:    "Hell no, turn back",
			expected: "Heck no, turn back",
		},
		{
			name:     "partial matches untouched",
			input:    "I love classical music and assorted pastries",
			expected: "I love classical music and assorted pastries",
		},
		{
			name:     "clean text unchanged",
			input:    "The forest path winds gently north.",
			expected: "The forest path winds gently north.",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "punctuation adjacent",
			input:    "What the hell?! That's damn strange.",
			expected: "What the heck?! That's dang strange.",
		},
		{
			name:     "censor marker",
			input:    "You filthy whore!",
			expected: "You filthy [censored]!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.expected {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNeedsSanitizing(t *testing.T) {
	s := NewSanitizer()

	if !s.NeedsSanitizing("what the hell") {
		t.Error("Expected profanity to be detected")
	}
	if s.NeedsSanitizing("a perfectly pleasant meadow") {
		t.Error("Expected clean text to pass")
	}
	if s.NeedsSanitizing("classical assortment") {
		t.Error("Expected embedded fragments to pass")
	}
}

func TestFamilyFriendly(t *testing.T) {
	tests := []struct {
		rating string
		want   bool
	}{
		{"G", true},
		{"PG", true},
		{"PG13", true},
		{"pg-13", true},
		{" PG ", true},
		{"R", false},
		{"M", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := FamilyFriendly(tt.rating); got != tt.want {
			t.Errorf("FamilyFriendly(%q) = %v, want %v", tt.rating, got, tt.want)
		}
	}
}
