package modes

import "testing"

// -----------------------------------------------------------------------------
// firstInt Tests
// -----------------------------------------------------------------------------

func TestFirstInt(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   int
		wantOK bool
	}{
		{name: "bare number", input: "2", want: 2, wantOK: true},
		{name: "number in prose", input: "I think candidate 3 is best", want: 3, wantOK: true},
		{name: "first of several", input: "2 beats 1", want: 2, wantOK: true},
		{name: "negative number", input: "maybe -1", want: -1, wantOK: true},
		{name: "digits inside a word", input: "gpt4 wins", want: 4, wantOK: true},
		{name: "no number", input: "the second one", wantOK: false},
		{name: "empty", input: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := firstInt(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("firstInt(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("firstInt(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// parseChoiceAB Tests
// -----------------------------------------------------------------------------

func TestParseChoiceAB(t *testing.T) {
	tests := []struct {
		name    string
		verdict string
		want    int
	}{
		{name: "plain A", verdict: "A", want: 0},
		{name: "plain B", verdict: "B", want: 1},
		{name: "lowercase b", verdict: "b", want: 1},
		{name: "numeric one", verdict: "1", want: 0},
		{name: "numeric two", verdict: "2", want: 1},
		{name: "B with reasoning", verdict: "B. The second answer is more thorough.", want: 1},
		{name: "A embedded in punctuation", verdict: "\"A\" is my pick", want: 0},
		{name: "unparseable defaults to A", verdict: "they are equally good", want: 0},
		{name: "empty defaults to A", verdict: "", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseChoiceAB(tt.verdict); got != tt.want {
				t.Errorf("parseChoiceAB(%q) = %d, want %d", tt.verdict, got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// parseAgreement Tests
// -----------------------------------------------------------------------------

func TestParseAgreement(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantAgree bool
		wantOK    bool
	}{
		{name: "agree", input: "AGREE", wantAgree: true, wantOK: true},
		{name: "agree lowercase with tail", input: "agree, the answers align", wantAgree: true, wantOK: true},
		{name: "disagree", input: "DISAGREE. Answer two diverges.", wantAgree: false, wantOK: true},
		{name: "yes counts as agree", input: "Yes", wantAgree: true, wantOK: true},
		{name: "no counts as disagree", input: "No.", wantAgree: false, wantOK: true},
		{name: "no verdict token", input: "hard to say", wantOK: false},
		{name: "empty", input: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agree, ok := parseAgreement(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("parseAgreement(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && agree != tt.wantAgree {
				t.Errorf("parseAgreement(%q) = %v, want %v", tt.input, agree, tt.wantAgree)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// interpolate Tests
// -----------------------------------------------------------------------------

func TestInterpolate(t *testing.T) {
	got := interpolate("Q: {question} ({count})", map[string]string{
		"question": "why",
		"count":    "3",
	})
	if got != "Q: why (3)" {
		t.Errorf("interpolate() = %q", got)
	}

	// Unknown placeholders stay intact so template mistakes are visible.
	got = interpolate("{question} {missing}", map[string]string{"question": "why"})
	if got != "why {missing}" {
		t.Errorf("interpolate() = %q", got)
	}
}
