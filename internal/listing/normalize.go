package listing

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validation failures. Callers check these with errors.Is.
var (
	ErrMissingRequired   = errors.New("missing required field")
	ErrPriceOutOfRange   = errors.New("price out of range")
	ErrSurfaceOutOfRange = errors.New("surface out of range")
)

// Bounds holds the sanity limits applied during validation. The numbers
// are empirical, not invariants; operators may tune them.
type Bounds struct {
	MaxPrice       int
	MinSurface     float64
	MaxDescription int
}

// DefaultBounds returns the default validation bounds.
func DefaultBounds() Bounds {
	return Bounds{
		MaxPrice:       50_000,
		MinSurface:     3,
		MaxDescription: 4000,
	}
}

// Normalizer turns a partial extraction result into a validated Record.
type Normalizer struct {
	validate *validator.Validate
	bounds   Bounds
}

// NewNormalizer creates a Normalizer with the given bounds.
func NewNormalizer(bounds Bounds) *Normalizer {
	return &Normalizer{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		bounds:   bounds,
	}
}

// Build validates and normalizes a partial into a Record. The record's
// identity fields (provider, external id, content hash) and seen
// timestamps are set here; the upsert gate decides insert vs update.
func (n *Normalizer) Build(p *Partial, sourceURL, provider string, now time.Time) (*Record, error) {
	if !p.RequiredFilled() {
		return nil, fmt.Errorf("%w: need title, price and location", ErrMissingRequired)
	}
	if p.Price <= 0 || p.Price > n.bounds.MaxPrice {
		return nil, fmt.Errorf("%w: %d", ErrPriceOutOfRange, p.Price)
	}

	typ := p.Type
	if typ == "" {
		typ = TypeOther
	}

	if p.Surface != nil && *p.Surface < n.bounds.MinSurface && typ != TypeRoom {
		return nil, fmt.Errorf("%w: %.1f m² for type %s", ErrSurfaceOutOfRange, *p.Surface, typ)
	}

	furnished := false
	if p.Furnished != nil {
		furnished = *p.Furnished
	}

	externalID := p.ExternalID
	if externalID == "" {
		externalID = DeriveExternalID(sourceURL)
	}

	rec := &Record{
		Title:       strings.TrimSpace(p.Title),
		Description: truncate(strings.TrimSpace(p.Description), n.bounds.MaxDescription),
		Price:       p.Price,
		Location:    strings.TrimSpace(p.Location),
		District:    strings.TrimSpace(p.District),
		Surface:     p.Surface,
		Rooms:       p.Rooms,
		Type:        typ,
		Furnished:   furnished,
		Images:      resolveImageURLs(p.Images, sourceURL),
		SourceURL:   sourceURL,
		Provider:    provider,
		ExternalID:  externalID,
		Lat:         p.Lat,
		Lng:         p.Lng,
		FirstSeenAt: now,
		LastSeenAt:  now,
		Active:      true,
	}
	rec.ContentHash = ContentHash(rec)

	if err := n.validate.Struct(rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingRequired, err)
	}

	return rec, nil
}

// ContentHash computes the stable fingerprint of a record over its
// semantically meaningful fields. Unchanged re-crawls of the same page
// must produce the same hash.
func ContentHash(r *Record) string {
	var b strings.Builder
	b.WriteString(r.SourceURL)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(r.Price))
	b.WriteByte('|')
	b.WriteString(formatOptFloat(r.Surface))
	b.WriteByte('|')
	b.WriteString(formatOptFloat(r.Rooms))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(r.Location))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func formatOptFloat(f *float64) string {
	if f == nil {
		return "-"
	}
	return strconv.FormatFloat(*f, 'f', 1, 64)
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := s[:max]
	// Avoid splitting a multi-byte rune.
	for len(cut) > 0 && !strings.HasSuffix(cut, " ") {
		r := cut[len(cut)-1]
		if r < 0x80 || r >= 0xC0 {
			break
		}
		cut = cut[:len(cut)-1]
	}
	return cut
}

// iconAssetRe matches image URLs that are site chrome rather than photos.
var iconAssetRe = regexp.MustCompile(`(?i)(logo|icon|sprite|placeholder|avatar|tracking|pixel)`)

func resolveImageURLs(images []string, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	var out []string
	seen := make(map[string]bool)
	for _, img := range images {
		img = strings.TrimSpace(img)
		if img == "" || strings.HasPrefix(img, "data:") || iconAssetRe.MatchString(img) {
			continue
		}
		u, err := url.Parse(img)
		if err != nil {
			continue
		}
		if !u.IsAbs() && base != nil {
			u = base.ResolveReference(u)
		}
		abs := u.String()
		if seen[abs] {
			continue
		}
		seen[abs] = true
		out = append(out, abs)
	}
	return out
}

// decimal and number parsing -------------------------------------------------

var numberRe = regexp.MustCompile(`\d{1,3}(?:[.,\s]\d{3})*(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?`)

// ParsePrice parses a price token in German or English notation
// ("1.250", "1,250.50", "850,00") into a whole currency amount.
func ParsePrice(text string) (int, bool) {
	f, ok := ParseDecimal(text)
	if !ok || f <= 0 {
		return 0, false
	}
	return int(f + 0.5), true
}

// ParseDecimal parses the first number in text, handling both "1.234,56"
// and "1,234.56" thousands/decimal conventions.
func ParseDecimal(text string) (float64, bool) {
	m := numberRe.FindString(text)
	if m == "" {
		return 0, false
	}
	m = strings.ReplaceAll(m, " ", "")

	lastComma := strings.LastIndex(m, ",")
	lastDot := strings.LastIndex(m, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// German: dots are thousands separators
			m = strings.ReplaceAll(m, ".", "")
			m = strings.Replace(m, ",", ".", 1)
		} else {
			m = strings.ReplaceAll(m, ",", "")
		}
	case lastComma >= 0:
		// A comma followed by exactly 3 digits at the end is a thousands
		// separator, otherwise a decimal comma.
		if len(m)-lastComma-1 == 3 {
			m = strings.ReplaceAll(m, ",", "")
		} else {
			m = strings.Replace(m, ",", ".", 1)
		}
	case lastDot >= 0:
		if len(m)-lastDot-1 == 3 {
			m = strings.ReplaceAll(m, ".", "")
		}
	}

	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// typeSynonyms maps free-text property type tokens to the fixed enum.
// Order matters: more specific tokens come first ("wg-zimmer" before
// "zimmer", "1-zimmer" before "wohnung").
var typeSynonyms = []struct {
	token string
	typ   Type
}{
	{"wg-zimmer", TypeRoom},
	{"wg", TypeRoom},
	{"shared", TypeRoom},
	{"1-zimmer-wohnung", TypeStudio},
	{"studio", TypeStudio},
	{"zimmer zur miete", TypeRoom},
	{"room", TypeRoom},
	{"einfamilienhaus", TypeHouse},
	{"reihenhaus", TypeHouse},
	{"doppelhaus", TypeHouse},
	{"haus", TypeHouse},
	{"house", TypeHouse},
	{"etagenwohnung", TypeApartment},
	{"dachgeschoss", TypeApartment},
	{"wohnung", TypeApartment},
	{"apartment", TypeApartment},
	{"flat", TypeApartment},
	{"zimmer", TypeRoom},
}

// MapType maps a free-text property type description to the enum,
// defaulting to TypeOther.
func MapType(text string) Type {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, syn := range typeSynonyms {
		if strings.Contains(lower, syn.token) {
			return syn.typ
		}
	}
	return TypeOther
}
