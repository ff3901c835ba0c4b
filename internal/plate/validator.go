package plate

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Length bounds for a normalized plate string, counted in runes.
const (
	MinLength = 5
	MaxLength = 8

	// fallbackMinLength is the shortest string the structural fallback admits.
	fallbackMinLength = 6
)

// Reason explains a validator decision.
type Reason string

const (
	ReasonTooShort       Reason = "too_short"
	ReasonTooLong        Reason = "too_long"
	ReasonSingleClass    Reason = "single_class"
	ReasonShortToken     Reason = "short_token"
	ReasonDigitRunSuffix Reason = "digit_run_suffix"
	ReasonClassCount     Reason = "class_count"
	ReasonLeadingDigit   Reason = "leading_digit"
	ReasonNoPattern      Reason = "no_pattern"

	// Acceptance reasons.
	ReasonPattern  Reason = "pattern"
	ReasonFallback Reason = "fallback"
)

// Verdict is the detailed outcome of validating one string.
type Verdict struct {
	Text    string `json:"text"` // normalized input
	Valid   bool   `json:"valid"`
	Reason  Reason `json:"reason"`
	Letters int    `json:"letters"`
	Digits  int    `json:"digits"`
}

// Structural plate layouts. Letter classes are ASCII; normalization uppercases first.
var platePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^[A-Z]{2,3}[0-9]{2,4}[A-Z]{0,2}$`), // AB123CD, ABC1234, ABC12CD
	regexp.MustCompile(`^[A-Z]{2}[0-9]{3,4}$`),             // AB123, AB1234
	regexp.MustCompile(`^[A-Z]{3}[0-9]{4}$`),               // ABC1234
}

var separatorStripper = strings.NewReplacer(" ", "", "-", "")

// Normalize uppercases s and removes spaces, hyphens and surrounding whitespace.
// Normalize(Normalize(s)) == Normalize(s) for every input.
func Normalize(s string) string {
	s = cases.Upper(language.Und).String(strings.TrimSpace(s))
	return strings.TrimSpace(separatorStripper.Replace(s))
}

// IsValid reports whether raw looks like a license plate after normalization.
func IsValid(raw string) bool {
	return Check(raw).Valid
}

// Check normalizes raw and runs the rejection rules followed by the
// acceptance rules, returning the first rule that decided.
func Check(raw string) Verdict {
	text := Normalize(raw)
	runes := []rune(text)
	n := len(runes)
	letters, digits := countClasses(runes)

	v := Verdict{Text: text, Letters: letters, Digits: digits}
	reject := func(r Reason) Verdict {
		v.Reason = r
		return v
	}
	accept := func(r Reason) Verdict {
		v.Valid = true
		v.Reason = r
		return v
	}

	switch {
	case n < MinLength:
		return reject(ReasonTooShort)
	case n > MaxLength:
		return reject(ReasonTooLong)
	case letters == n || digits == n:
		return reject(ReasonSingleClass)
	case n <= 2:
		return reject(ReasonShortToken)
	case n <= 5 && allDigits(runes[:n-1]) && unicode.IsLetter(runes[n-1]):
		return reject(ReasonDigitRunSuffix)
	case letters < 2 || digits < 2:
		return reject(ReasonClassCount)
	}

	for _, re := range platePatterns {
		if re.MatchString(text) {
			return accept(ReasonPattern)
		}
	}

	if n >= fallbackMinLength && n <= MaxLength {
		if unicode.IsDigit(runes[0]) {
			return reject(ReasonLeadingDigit)
		}
		return accept(ReasonFallback)
	}

	return reject(ReasonNoPattern)
}

func countClasses(runes []rune) (letters, digits int) {
	for _, r := range runes {
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsDigit(r):
			digits++
		}
	}
	return letters, digits
}

func allDigits(runes []rune) bool {
	if len(runes) == 0 {
		return false
	}
	for _, r := range runes {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
