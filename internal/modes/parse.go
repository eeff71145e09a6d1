package modes

import (
	"regexp"
	"strconv"
	"strings"
)

var intPattern = regexp.MustCompile(`-?\d+`)

// firstInt extracts the first integer substring from s. Parsing is
// intentionally lenient: "I think candidate 2" yields 2. Returns false when
// s contains no integer.
func firstInt(s string) (int, bool) {
	match := intPattern.FindString(s)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseChoiceAB reads a judge verdict and returns 0 for competitor A or 1
// for competitor B. It accepts "A"/"B" (any case, standalone word) and
// "1"/"2". Anything unparseable defaults to A, so judges can never stall a
// bracket.
func parseChoiceAB(verdict string) int {
	for _, token := range strings.FieldsFunc(verdict, func(r rune) bool {
		return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || '0' <= r && r <= '9')
	}) {
		switch strings.ToUpper(token) {
		case "A", "1":
			return 0
		case "B", "2":
			return 1
		}
	}
	return 0
}

// parseAgreement reads a consensus evaluation and reports whether the model
// agreed. The first standalone AGREE/DISAGREE (or YES/NO) token wins;
// unparseable evaluations count as disagreement. The second return is false
// when no verdict token was found at all.
func parseAgreement(evaluation string) (agree bool, ok bool) {
	for _, token := range strings.Fields(evaluation) {
		switch strings.ToUpper(strings.Trim(token, ".,:;!\"'")) {
		case "AGREE", "YES":
			return true, true
		case "DISAGREE", "NO":
			return false, true
		}
	}
	return false, false
}

// interpolate substitutes {key} placeholders in a prompt template.
// Unrecognized placeholders are left intact.
func interpolate(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for key, value := range vars {
		pairs = append(pairs, "{"+key+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
