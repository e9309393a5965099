package util

import (
	"regexp"
	"strings"
)

var nonDigitRe = regexp.MustCompile(`\D`)

// NormalizePhone strips everything but digits.
func NormalizePhone(phone string) string {
	return nonDigitRe.ReplaceAllString(phone, "")
}

// IsValidPhone accepts international numbers of 8 to 15 digits.
func IsValidPhone(phone string) bool {
	cleaned := NormalizePhone(phone)
	return len(cleaned) >= 8 && len(cleaned) <= 15
}

var offensiveWords = []string{
	"chucha", "mierda", "carajo", "huevón", "huevon", "conchatumadre", "ctm",
	"puta", "verga", "cojudo", "imbécil", "imbecil", "idiota", "estúpido",
	"estupido", "pendejo", "tarado",
}

var offensiveRes = func() []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(offensiveWords))
	for i, w := range offensiveWords {
		res[i] = regexp.MustCompile(`(?i)\b` + w + `\b`)
	}
	return res
}()

// ContainsOffensiveLanguage reports whether the text has a blocked word on
// a word boundary.
func ContainsOffensiveLanguage(text string) bool {
	lower := strings.ToLower(text)
	for _, re := range offensiveRes {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}
