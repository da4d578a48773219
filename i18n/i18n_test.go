package i18n

import "testing"

func TestDetectLanguage(t *testing.T) {
	tests := map[string]string{
		"en-US,en;q=0.9": "en",
		"EN-gb":          "en",
		"fr-FR,en;q=0.8": "en",
		"fr-FR,fr;q=0.8": "en",
		"":               "en",
	}
	for header, want := range tests {
		if got := DetectLanguage(header); got != want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestTranslations(t *testing.T) {
	if T("en", "required") != "Required" {
		t.Fatalf("expected Required")
	}
	if T("en", "make_required") != "Make is required for proforma invoices." {
		t.Fatalf("unexpected proforma message")
	}
	// unknown code -> fallback to code
	if T("en", "__nope__") != "__nope__" {
		t.Fatalf("expected fallback to code")
	}
	// unknown language -> default catalog
	if T("es", "required") != "Required" {
		t.Fatalf("expected default fallback for es lang")
	}
}

func TestFields(t *testing.T) {
	got := Fields("en", map[string]string{"name": "required"})
	if got["name"] != "Required" {
		t.Fatalf("got %v", got)
	}
	if Fields("en", nil) != nil {
		t.Fatalf("expected nil for no codes")
	}
}
