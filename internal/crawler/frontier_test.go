package crawler

import "testing"

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://Example.DE/Expose/123/", "https://example.de/Expose/123"},
		{"https://example.de/a?utm_source=x&utm_campaign=y", "https://example.de/a"},
		{"https://example.de/a?b=2&a=1", "https://example.de/a?a=1&b=2"},
		{"https://example.de/a#section", "https://example.de/a"},
		{"https://example.de/", "https://example.de/"},
		{"not a url", ""},
		{"/relative/only", ""},
	}

	for _, tt := range tests {
		if got := NormalizeURL(tt.in); got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeURL_TrackingVariantsCollapse(t *testing.T) {
	a := NormalizeURL("https://example.de/expose/123?utm_source=newsletter")
	b := NormalizeURL("https://example.de/expose/123/?fbclid=xyz")
	c := NormalizeURL("https://example.de/expose/123#gallery")
	if a != b || b != c {
		t.Errorf("tracking variants should normalize identically: %q %q %q", a, b, c)
	}
}

func TestFrontier_DeduplicatesOnAdd(t *testing.T) {
	f := NewFrontier()

	if !f.Add(&Task{URL: "https://example.de/expose/1234"}) {
		t.Fatal("first add should succeed")
	}
	if f.Add(&Task{URL: "https://example.de/expose/1234?utm_source=x"}) {
		t.Error("tracking-param variant should be rejected as duplicate")
	}
	if f.Add(&Task{URL: "https://example.de/expose/1234/"}) {
		t.Error("trailing-slash variant should be rejected as duplicate")
	}
	if f.Len() != 1 {
		t.Errorf("expected 1 queued task, got %d", f.Len())
	}
	if f.VisitedCount() != 1 {
		t.Errorf("expected 1 visited URL, got %d", f.VisitedCount())
	}
}

func TestFrontier_PopOrder(t *testing.T) {
	f := NewFrontier()
	f.Add(&Task{URL: "https://example.de/a"})
	f.Add(&Task{URL: "https://example.de/b"})

	if got := f.Pop(); got == nil || got.URL != "https://example.de/a" {
		t.Errorf("expected FIFO order, got %+v", got)
	}
	if got := f.Pop(); got == nil || got.URL != "https://example.de/b" {
		t.Errorf("expected FIFO order, got %+v", got)
	}
	if f.Pop() != nil {
		t.Error("empty frontier should pop nil")
	}

	// A popped URL stays in the visited set.
	if f.Add(&Task{URL: "https://example.de/a"}) {
		t.Error("processed URL must not be re-enqueued")
	}
}

func TestSameOrigin(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"https://example.de/a", "https://example.de/b", true},
		{"https://example.de/a", "https://EXAMPLE.de/b", true},
		{"https://example.de/a", "http://example.de/a", false},
		{"https://example.de/a", "https://cdn.example.de/a", false},
	}
	for _, tt := range tests {
		if got := SameOrigin(tt.a, tt.b); got != tt.want {
			t.Errorf("SameOrigin(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
