// Package listing defines the rental listing record, the partial record
// produced by extraction strategies, and validation/normalization rules.
package listing

import (
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Type classifies the kind of rental property.
type Type string

const (
	TypeApartment Type = "apartment"
	TypeHouse     Type = "house"
	TypeStudio    Type = "studio"
	TypeRoom      Type = "room" // room / WG share
	TypeOther     Type = "other"
)

// Field identifies a single extractable field of a listing record.
// Used by the strategy chain for gap-filling merges and by the pattern
// learner to track per-field strategy success.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldPrice       Field = "price"
	FieldLocation    Field = "location"
	FieldDistrict    Field = "district"
	FieldSurface     Field = "surface"
	FieldRooms       Field = "rooms"
	FieldType        Field = "type"
	FieldFurnished   Field = "furnished"
	FieldImages      Field = "images"
	FieldGeo         Field = "geo"
	FieldExternalID  Field = "external_id"
)

// Record is a fully validated rental listing.
type Record struct {
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description,omitempty"`
	Price       int      `json:"price" validate:"gt=0"`
	Location    string   `json:"location" validate:"required"`
	District    string   `json:"district,omitempty"`
	Surface     *float64 `json:"surface,omitempty"`
	Rooms       *float64 `json:"rooms,omitempty"`
	Type        Type     `json:"type"`
	Furnished   bool     `json:"furnished"`
	Images      []string `json:"images,omitempty"`

	SourceURL  string `json:"source_url" validate:"required,url"`
	Provider   string `json:"provider" validate:"required"`
	ExternalID string `json:"external_id,omitempty"`

	Lat *float64 `json:"lat,omitempty"`
	Lng *float64 `json:"lng,omitempty"`

	ContentHash string    `json:"content_hash"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	Active      bool      `json:"active"`
}

// Partial is an incomplete record produced by one extraction strategy.
// Zero values mean "not filled"; pointer fields distinguish absent from zero.
type Partial struct {
	Title       string
	Description string
	Price       int
	Location    string
	District    string
	Surface     *float64
	Rooms       *float64
	Type        Type
	Furnished   *bool
	Images      []string
	ExternalID  string
	Lat         *float64
	Lng         *float64
}

// Has reports whether the given field has been filled.
func (p *Partial) Has(f Field) bool {
	switch f {
	case FieldTitle:
		return p.Title != ""
	case FieldDescription:
		return p.Description != ""
	case FieldPrice:
		return p.Price > 0
	case FieldLocation:
		return p.Location != ""
	case FieldDistrict:
		return p.District != ""
	case FieldSurface:
		return p.Surface != nil
	case FieldRooms:
		return p.Rooms != nil
	case FieldType:
		return p.Type != ""
	case FieldFurnished:
		return p.Furnished != nil
	case FieldImages:
		return len(p.Images) > 0
	case FieldGeo:
		return p.Lat != nil && p.Lng != nil
	case FieldExternalID:
		return p.ExternalID != ""
	}
	return false
}

// FilledFields returns the fields this partial has values for.
func (p *Partial) FilledFields() []Field {
	all := []Field{
		FieldTitle, FieldDescription, FieldPrice, FieldLocation, FieldDistrict,
		FieldSurface, FieldRooms, FieldType, FieldFurnished, FieldImages,
		FieldGeo, FieldExternalID,
	}
	var filled []Field
	for _, f := range all {
		if p.Has(f) {
			filled = append(filled, f)
		}
	}
	return filled
}

// Merge fills gaps in p from other. Fields already set on p are never
// overwritten, so earlier (higher-trust) strategies always win.
func (p *Partial) Merge(other *Partial) {
	if other == nil {
		return
	}
	if p.Title == "" {
		p.Title = other.Title
	}
	if p.Description == "" {
		p.Description = other.Description
	}
	if p.Price <= 0 {
		p.Price = other.Price
	}
	if p.Location == "" {
		p.Location = other.Location
	}
	if p.District == "" {
		p.District = other.District
	}
	if p.Surface == nil {
		p.Surface = other.Surface
	}
	if p.Rooms == nil {
		p.Rooms = other.Rooms
	}
	if p.Type == "" {
		p.Type = other.Type
	}
	if p.Furnished == nil {
		p.Furnished = other.Furnished
	}
	if len(p.Images) == 0 {
		p.Images = other.Images
	}
	if p.ExternalID == "" {
		p.ExternalID = other.ExternalID
	}
	if p.Lat == nil || p.Lng == nil {
		if other.Lat != nil && other.Lng != nil {
			p.Lat = other.Lat
			p.Lng = other.Lng
		}
	}
}

// RequiredFilled reports whether the minimum viable record fields
// (title, price, location) are all present.
func (p *Partial) RequiredFilled() bool {
	return p.Title != "" && p.Price > 0 && p.Location != ""
}

var externalIDPathRe = regexp.MustCompile(`(?:^|[/._-])(\d{4,})(?:\.html?|/)?$`)

// externalIDQueryKeys are query parameters commonly carrying a listing id.
var externalIDQueryKeys = []string{"id", "adid", "ad_id", "listing_id", "expose", "objektnr"}

// DeriveExternalID extracts a stable listing identifier from a detail URL:
// a trailing numeric path token of at least 4 digits, or a well-known id
// query parameter. Returns "" when no id is derivable; identity then falls
// back to the content hash.
func DeriveExternalID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	if m := externalIDPathRe.FindStringSubmatch(strings.TrimSuffix(u.Path, "/")); m != nil {
		return m[1]
	}

	q := u.Query()
	for _, key := range externalIDQueryKeys {
		if v := q.Get(key); v != "" && isDigits(v) {
			return v
		}
	}

	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
