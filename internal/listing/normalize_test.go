package listing

import (
	"errors"
	"testing"
	"time"
)

func floatPtr(f float64) *float64 { return &f }

func validPartial() *Partial {
	return &Partial{
		Title:    "Helle 2-Zimmer-Wohnung in Mitte",
		Price:    850,
		Location: "10115 Berlin",
		Surface:  floatPtr(54),
		Rooms:    floatPtr(2),
		Type:     TypeApartment,
	}
}

func TestBuild_Valid(t *testing.T) {
	n := NewNormalizer(DefaultBounds())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rec, err := n.Build(validPartial(), "https://example.de/expose/12345", "example.de", now)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if rec.Price != 850 {
		t.Errorf("expected price 850, got %d", rec.Price)
	}
	if rec.ExternalID != "12345" {
		t.Errorf("expected derived external id 12345, got %q", rec.ExternalID)
	}
	if rec.ContentHash == "" {
		t.Error("expected non-empty content hash")
	}
	if !rec.Active {
		t.Error("new record should be active")
	}
	if !rec.FirstSeenAt.Equal(now) || !rec.LastSeenAt.Equal(now) {
		t.Error("seen timestamps should both be set to now")
	}
}

func TestBuild_Rejections(t *testing.T) {
	n := NewNormalizer(DefaultBounds())
	now := time.Now()

	tests := []struct {
		name    string
		mutate  func(p *Partial)
		wantErr error
	}{
		{
			name:    "missing title",
			mutate:  func(p *Partial) { p.Title = "" },
			wantErr: ErrMissingRequired,
		},
		{
			name:    "missing location",
			mutate:  func(p *Partial) { p.Location = "" },
			wantErr: ErrMissingRequired,
		},
		{
			name:    "zero price",
			mutate:  func(p *Partial) { p.Price = 0 },
			wantErr: ErrMissingRequired,
		},
		{
			name:    "price above cap",
			mutate:  func(p *Partial) { p.Price = 50_001 },
			wantErr: ErrPriceOutOfRange,
		},
		{
			name:    "tiny surface for apartment",
			mutate:  func(p *Partial) { p.Surface = floatPtr(2) },
			wantErr: ErrSurfaceOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPartial()
			tt.mutate(p)
			_, err := n.Build(p, "https://example.de/expose/1", "example.de", now)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestBuild_BoundaryValues(t *testing.T) {
	n := NewNormalizer(DefaultBounds())
	now := time.Now()

	p := validPartial()
	p.Price = 1
	if _, err := n.Build(p, "https://example.de/a/1234", "x", now); err != nil {
		t.Errorf("price 1 should be accepted: %v", err)
	}

	p = validPartial()
	p.Price = 50_000
	if _, err := n.Build(p, "https://example.de/a/1234", "x", now); err != nil {
		t.Errorf("price at cap should be accepted: %v", err)
	}

	// A 2 m² surface is fine for a room share, just not for an apartment.
	p = validPartial()
	p.Surface = floatPtr(2)
	p.Type = TypeRoom
	if _, err := n.Build(p, "https://example.de/a/1234", "x", now); err != nil {
		t.Errorf("tiny surface should be accepted for rooms: %v", err)
	}
}

func TestContentHash_Stable(t *testing.T) {
	n := NewNormalizer(DefaultBounds())
	now := time.Now()

	a, err := n.Build(validPartial(), "https://example.de/expose/12345", "example.de", now)
	if err != nil {
		t.Fatal(err)
	}
	b, err := n.Build(validPartial(), "https://example.de/expose/12345", "example.de", now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if a.ContentHash != b.ContentHash {
		t.Error("identical content at different times must hash identically")
	}

	p := validPartial()
	p.Price = 900
	c, err := n.Build(p, "https://example.de/expose/12345", "example.de", now)
	if err != nil {
		t.Fatal(err)
	}
	if a.ContentHash == c.ContentHash {
		t.Error("price change must change the content hash")
	}
}

func TestBuild_FiltersIconImages(t *testing.T) {
	n := NewNormalizer(DefaultBounds())
	p := validPartial()
	p.Images = []string{
		"/img/photo-1.jpg",
		"https://cdn.example.de/logo.svg",
		"data:image/gif;base64,R0lGOD",
		"/img/photo-1.jpg", // duplicate
	}

	rec, err := n.Build(p, "https://example.de/expose/9", "example.de", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Images) != 1 {
		t.Fatalf("expected 1 image after filtering, got %d: %v", len(rec.Images), rec.Images)
	}
	if rec.Images[0] != "https://example.de/img/photo-1.jpg" {
		t.Errorf("expected resolved absolute URL, got %q", rec.Images[0])
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"850 €", 850, true},
		{"1.250 €", 1250, true},
		{"1.250,50 EUR", 1251, true},
		{"1,250.50", 1251, true},
		{"Kaltmiete: 680,00 €", 680, true},
		{"warm", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParsePrice(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParsePrice(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"54,5 m²", 54.5, true},
		{"54.5", 54.5, true},
		{"1.234,56", 1234.56, true},
		{"1,234.56", 1234.56, true},
		{"2 Zimmer", 2, true},
		{"keine Angabe", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseDecimal(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseDecimal(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestMapType(t *testing.T) {
	tests := []struct {
		in   string
		want Type
	}{
		{"Etagenwohnung", TypeApartment},
		{"WG-Zimmer in Kreuzberg", TypeRoom},
		{"1-Zimmer-Wohnung", TypeStudio},
		{"Einfamilienhaus", TypeHouse},
		{"Gewerbefläche", TypeOther},
		{"", TypeOther},
	}

	for _, tt := range tests {
		if got := MapType(tt.in); got != tt.want {
			t.Errorf("MapType(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
