package matching

import (
	"regexp"
	"strings"
)

// UnknownBrand is returned when no brand can be resolved.
const UnknownBrand = "Unknown"

// knownBrand is a brand token searched for in titles and its display name.
type knownBrand struct {
	token string
	name  string
}

var defaultKnownBrands = []knownBrand{
	{"eureka", "Eureka"},
	{"ecm", "ECM"},
	{"profitec", "Profitec"},
	{"rocket", "Rocket"},
	{"breville", "Breville"},
	{"delonghi", "DeLonghi"},
	{"gaggia", "Gaggia"},
	{"rancilio", "Rancilio"},
	{"lelit", "Lelit"},
	{"bezzera", "Bezzera"},
	{"ascaso", "Ascaso"},
	{"mazzer", "Mazzer"},
	{"baratza", "Baratza"},
	{"comandante", "Comandante"},
	{"fellow", "Fellow"},
	{"timemore", "Timemore"},
	{"kinu", "Kinu"},
	{"jx-pro", "JX-Pro"},
	{"hario", "Hario"},
}

// BrandResolver resolves the brand of a product from its vendor and title.
type BrandResolver struct {
	storeVendors map[string]struct{}
	brands       []knownBrand
	patterns     []*regexp.Regexp
}

// NewBrandResolver creates a resolver. storeVendors are the seller's own
// store names; a vendor equal to one of them is not trusted as a brand.
func NewBrandResolver(storeVendors []string) *BrandResolver {
	r := &BrandResolver{
		storeVendors: make(map[string]struct{}, len(storeVendors)),
		brands:       defaultKnownBrands,
	}
	for _, v := range storeVendors {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			r.storeVendors[v] = struct{}{}
		}
	}
	r.patterns = make([]*regexp.Regexp, len(r.brands))
	for i, b := range r.brands {
		r.patterns[i] = regexp.MustCompile(`(?i)(^|[^a-z0-9])` + regexp.QuoteMeta(b.token) + `([^a-z0-9]|$)`)
	}
	return r
}

// Resolve returns the brand for a product: a trusted vendor, then a known
// brand found in the title, then the first title token, then UnknownBrand.
func (r *BrandResolver) Resolve(vendor, title string) string {
	if v := strings.TrimSpace(vendor); r.trusted(v) {
		return v
	}
	if b, ok := r.FromTitle(title); ok {
		return b
	}
	if fields := strings.Fields(title); len(fields) > 0 {
		return fields[0]
	}
	return UnknownBrand
}

// FromTitle looks for a known brand in the title.
func (r *BrandResolver) FromTitle(title string) (string, bool) {
	for i, p := range r.patterns {
		if p.MatchString(title) {
			return r.brands[i].name, true
		}
	}
	return "", false
}

func (r *BrandResolver) trusted(vendor string) bool {
	if len(vendor) <= 1 {
		return false
	}
	_, generic := r.storeVendors[strings.ToLower(vendor)]
	return !generic
}

// SameBrand compares two resolved brands case-insensitively.
func SameBrand(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
