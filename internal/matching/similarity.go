package matching

import (
	"math"
	"regexp"
	"strings"
)

var (
	genericWordsRe = regexp.MustCompile(`(?i)\b(semi-automatic|espresso|machine|coffee|grinder|burr|electric|manual|automatic)\b`)
	punctuationRe  = regexp.MustCompile(`[^\w\s]`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
)

// CleanTitle lowercases a title and strips category words and punctuation.
func CleanTitle(title string) string {
	s := strings.ToLower(title)
	s = genericWordsRe.ReplaceAllString(s, "")
	s = punctuationRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// TitleTokens returns the cleaned title tokens longer than two characters.
func TitleTokens(title string) []string {
	fields := strings.Fields(CleanTitle(title))
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// TokenOverlap scores two token lists: an equal token counts 1, a token
// contained in the other (either way) counts 0.5, first match wins. The sum
// is divided by the longer list length.
func TokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var matches float64
	for _, ta := range a {
		for _, tb := range b {
			if ta == tb {
				matches++
				break
			}
			if strings.Contains(ta, tb) || strings.Contains(tb, ta) {
				matches += 0.5
				break
			}
		}
	}
	return matches / float64(max(len(a), len(b)))
}

// TitleSimilarity is TokenOverlap over the cleaned titles.
func TitleSimilarity(a, b string) float64 {
	return TokenOverlap(TitleTokens(a), TitleTokens(b))
}

// TypeSimilarity is 1 for case-insensitive equal, non-empty categories.
func TypeSimilarity(a, b string) float64 {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return 0
	}
	if strings.EqualFold(a, b) {
		return 1
	}
	return 0
}

// BrandSimilarity is 1 for case-insensitive equal brands.
func BrandSimilarity(a, b string) float64 {
	if SameBrand(a, b) {
		return 1
	}
	return 0
}

// PriceSimilarity is 1 - |a-b|/max(a,b), floored at 0. Unknown or zero
// prices score 0.
func PriceSimilarity(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	return math.Max(0, 1-math.Abs(a-b)/math.Max(a, b))
}

// CosineSimilarity returns dot(a,b)/(|a||b|). Mismatched lengths, empty
// vectors and zero magnitudes yield 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
