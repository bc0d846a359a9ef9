package matching

import (
	"fmt"
	"regexp"
	"strings"
)

// FeatureInput is the subset of a product the extractor reads.
type FeatureInput struct {
	Title       string
	Brand       string
	ProductType string
	Description string
	Price       float64 // 0 when unknown
}

var (
	waterTankRe  = regexp.MustCompile(`(?i)(\d+\.?\d*)\s*(?:liters?|litres?|l)\b`)
	beanHopperRe = regexp.MustCompile(`(?i)(\d+)\s*(?:g|gram|kg|pound|lb)\s*(?:bean|hopper)`)
	modelRe      = regexp.MustCompile(`(?i)\b([A-Z]{2,}[-\s]?\d{2,}[A-Z]*)\b`)
)

// keywordFlag tags a feature when any of its words appear. Short words are
// matched on word boundaries so "pid" does not fire on "rapid".
type keywordFlag struct {
	feature   string
	words     []string
	titleOnly bool
}

var boilerFlags = []keywordFlag{
	{feature: "boiler: dual boiler", words: []string{"dual boiler"}},
	{feature: "boiler: single boiler", words: []string{"single boiler"}},
	{feature: "boiler: heat exchanger", words: []string{"heat exchanger"}},
}

var keywordFlags = []keywordFlag{
	{feature: "control: pid temperature control", words: []string{"pid"}},
	{feature: "group: e61 group head", words: []string{"e61"}},
	{feature: "feature: pressure profiling", words: []string{"profiling"}},
	{feature: "type: burr grinder", words: []string{"burr"}},
	{feature: "burr: conical burr", words: []string{"conical"}},
	{feature: "burr: flat burr", words: []string{"flat"}},
	{feature: "adjustment: stepless", words: []string{"stepless"}},
	{feature: "adjustment: stepped", words: []string{"stepped"}},
	{feature: "size: compact", words: []string{"compact", "mini"}, titleOnly: true},
	{feature: "size: commercial grade", words: []string{"commercial", "pro"}, titleOnly: true},
	{feature: "material: stainless steel", words: []string{"stainless steel"}},
	{feature: "material: brass", words: []string{"brass"}},
}

var wordPatterns = map[string]*regexp.Regexp{}

func init() {
	for _, set := range [][]keywordFlag{boilerFlags, keywordFlags} {
		for _, f := range set {
			for _, w := range f.words {
				wordPatterns[w] = regexp.MustCompile(`\b` + regexp.QuoteMeta(w) + `\b`)
			}
		}
	}
}

// ExtractFeatures derives the normalized "key: value" attribute list of a
// product. The result depends only on its input.
func ExtractFeatures(in FeatureInput) []string {
	title := strings.ToLower(in.Title)
	desc := strings.ToLower(in.Description)
	productType := strings.ToLower(in.ProductType)

	var features []string
	if brand := strings.ToLower(strings.TrimSpace(in.Brand)); brand != "" {
		features = append(features, "brand: "+brand)
	}

	if strings.Contains(productType, "espresso") || strings.Contains(title, "espresso") {
		features = append(features, "category: espresso machine")
	}
	if strings.Contains(productType, "grinder") || strings.Contains(title, "grinder") {
		features = append(features, "category: coffee grinder")
	}

	// boiler types are mutually exclusive, first hit wins
	for _, f := range boilerFlags {
		if f.matches(title, desc) {
			features = append(features, f.feature)
			break
		}
	}
	for _, f := range keywordFlags {
		if f.matches(title, desc) {
			features = append(features, f.feature)
		}
	}

	if m := waterTankRe.FindStringSubmatch(in.Title); m != nil {
		features = append(features, fmt.Sprintf("water tank: %sL", m[1]))
	}
	if m := beanHopperRe.FindStringSubmatch(in.Title); m != nil {
		features = append(features, fmt.Sprintf("bean hopper: %sg", m[1]))
	}

	if bracket := PriceBracket(in.Price); bracket != "" {
		features = append(features, "price range: "+bracket)
	}

	if m := modelRe.FindStringSubmatch(in.Title); m != nil {
		features = append(features, "model: "+strings.ToLower(m[1]))
	}
	return features
}

// FeatureString joins the extracted features for storage and embedding input.
func FeatureString(in FeatureInput) string {
	return strings.Join(ExtractFeatures(in), ", ")
}

// PriceBracket buckets a price. Unknown (zero) prices have no bracket.
func PriceBracket(price float64) string {
	switch {
	case price <= 0:
		return ""
	case price < 500:
		return "entry level"
	case price < 1500:
		return "mid range"
	case price < 3000:
		return "premium"
	default:
		return "luxury"
	}
}

func (f keywordFlag) matches(title, desc string) bool {
	for _, w := range f.words {
		p := wordPatterns[w]
		if p.MatchString(title) {
			return true
		}
		if !f.titleOnly && p.MatchString(desc) {
			return true
		}
	}
	return false
}

// TitleEmbeddingText is the text embedded as a product's title vector.
func TitleEmbeddingText(brand, title string) string {
	return strings.TrimSpace(brand + " " + title)
}

// FeaturesEmbeddingText is the text embedded as a product's features vector.
func FeaturesEmbeddingText(productType, features string) string {
	return strings.TrimSpace(productType + " " + features)
}
