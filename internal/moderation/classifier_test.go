package moderation

import (
	"reflect"
	"strings"
	"testing"
)

func infractionTypesOf(infractions []Infraction) []InfractionType {
	out := []InfractionType{}
	for _, inf := range infractions {
		out = append(out, inf.Type)
	}
	return out
}

func TestClassify_Scenarios(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name     string
		input    string
		types    []InfractionType
		severity Severity
	}{
		{"clean greeting", "Hello, looking forward to the event!", []InfractionType{}, SeverityWarning},
		{"plain email", "email me at artist@example.com", []InfractionType{TypeEmail}, SeveritySevere},
		{"us phone", "call me at 555-123-4567", []InfractionType{TypePhone}, SeveritySevere},
		{"instagram handle", "sígueme en instagram @artistpage", []InfractionType{TypeSocial}, SeverityWarning},
		{"bizum request", "hazme un bizum de 50 euros", []InfractionType{TypePayment}, SeverityCritical},
		{"allow-listed portfolio", "check my portfolio at https://behance.net/me", []InfractionType{}, SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := c.Decide(tt.input)
			got := infractionTypesOf(result.Infractions)
			if !reflect.DeepEqual(got, tt.types) {
				t.Fatalf("Decide(%q) types = %v, want %v", tt.input, got, tt.types)
			}
			if result.IsBlocked != (len(tt.types) > 0) {
				t.Errorf("Decide(%q).IsBlocked = %v, want %v", tt.input, result.IsBlocked, len(tt.types) > 0)
			}
			if result.Severity != tt.severity {
				t.Errorf("Decide(%q).Severity = %q, want %q", tt.input, result.Severity, tt.severity)
			}
		})
	}
}

func TestClassify_Email(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name    string
		input   string
		matched string
	}{
		{"standard", "mi mail es banda.rock+gigs@correo.es gracias", "banda.rock+gigs@correo.es"},
		{"bracket at", "escríbeme a artista [at] gmail [dot] com", "artista [at] gmail [dot] com"},
		{"paren arroba", "artista(arroba)gmail.com", "artista(arroba)gmail.com"},
		{"bracket arroba", "dj [arroba] hotmail [punto] es", "dj [arroba] hotmail [punto] es"},
		{"correo electronico phrase", "correo electrónico: djlola", "correo electrónico: djlola"},
		{"uppercase", "ARTIST@EXAMPLE.COM", "ARTIST@EXAMPLE.COM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.input)
			if len(got) != 1 {
				t.Fatalf("Classify(%q) = %d infractions (%v), want 1", tt.input, len(got), got)
			}
			if got[0].Type != TypeEmail {
				t.Errorf("Classify(%q)[0].Type = %q, want %q", tt.input, got[0].Type, TypeEmail)
			}
			if got[0].MatchedText != tt.matched {
				t.Errorf("Classify(%q)[0].MatchedText = %q, want %q", tt.input, got[0].MatchedText, tt.matched)
			}
		})
	}
}

func TestClassify_Phone(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name  string
		input string
	}{
		{"whatsapp keyword", "mi whatsapp es 612 345 678"},
		{"telefono keyword", "Teléfono: +34 612 345 678"},
		{"movil keyword", "móvil 612-345-678"},
		{"llamame al", "llámame al 612345678"},
		{"international", "+44 20 7946 0958"},
		{"us dotted", "555.123.4567"},
		{"us parenthesized", "(555) 123-4567"},
		{"decomposed accent", "tele\u0301fono: 612345678"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.input)
			if len(got) != 1 {
				t.Fatalf("Classify(%q) = %d infractions (%v), want 1", tt.input, len(got), got)
			}
			if got[0].Type != TypePhone {
				t.Errorf("Classify(%q)[0].Type = %q, want %q", tt.input, got[0].Type, TypePhone)
			}
		})
	}
}

func TestClassify_PhoneRuns(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name    string
		input   string
		matched []string
	}{
		{"two numbers", "Contacto: 612 345 678 o 698 765 432", []string{"612 345 678", "698 765 432"}},
		{"adjacent numbers", "escríbeme 612345678 612345679", []string{"612345678", "612345679"}},
		{"number then date", "612 345 678 10 06 2025 a las", []string{"612 345 678 10 06"}},
		{"international then number", "+34 612 345 678 y 698765432", []string{"+34 612 345 678", "698765432"}},
		{"grouped pair", "612 345 678 698 765 432", []string{"612 345 678 698 765"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.input)
			var matched []string
			for _, inf := range got {
				if inf.Type != TypePhone {
					t.Errorf("Classify(%q) type = %q, want %q", tt.input, inf.Type, TypePhone)
				}
				matched = append(matched, inf.MatchedText)
			}
			if !reflect.DeepEqual(matched, tt.matched) {
				t.Errorf("Classify(%q) matched = %q, want %q", tt.input, matched, tt.matched)
			}
		})
	}
}

func TestPhoneNumbers(t *testing.T) {
	tests := []struct {
		run  string
		want [][]int
	}{
		{"612345678", [][]int{{0, 9}}},
		{"+44 20 7946 0958", [][]int{{0, 16}}},
		{"12345678", nil},
		{"12345678901234567890", nil},
		{"612345678 612345679", [][]int{{0, 9}, {10, 19}}},
		{"1234567890123456 612345678", [][]int{{17, 26}}},
	}

	for _, tt := range tests {
		if got := phoneNumbers(tt.run); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("phoneNumbers(%q) = %v, want %v", tt.run, got, tt.want)
		}
	}
}

func TestClassify_Social(t *testing.T) {
	c := NewClassifier()

	inputs := []string{
		"twitter: @djmike",
		"mi insta es insta: la.banda",
		"facebook.com/labandaoficial",
		"únete a t.me/djmike_live",
		"discord.gg/abc123",
		"tiktok @djlola",
		"linkedin.com/in/maria-photo",
		"búscame en @mariafoto",
		"follow me on @djmike",
		"x: @djmike",
		"x.com/djmike",
	}

	for _, input := range inputs {
		got := c.Classify(input)
		if len(got) != 1 || got[0].Type != TypeSocial {
			t.Errorf("Classify(%q) = %v, want a single social infraction", input, got)
		}
	}
}

func TestClassify_Payment(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name  string
		input string
		count int
	}{
		{"two platforms", "paga por paypal o venmo", 2},
		{"te paso mi paypal", "te paso mi PayPal y listo", 1},
		{"bank transfer", "envíame una transferencia bancaria", 1},
		{"pago externo", "hacemos un pago externo mejor", 1},
		{"mercado pago", "acepto Mercado Pago", 1},
		{"western union", "send it by western union", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.input)
			if len(got) != tt.count {
				t.Fatalf("Classify(%q) = %d infractions (%v), want %d", tt.input, len(got), got, tt.count)
			}
			for _, inf := range got {
				if inf.Type != TypePayment {
					t.Errorf("Classify(%q) type = %q, want %q", tt.input, inf.Type, TypePayment)
				}
			}
		})
	}
}

func TestClassify_ExternalLinks(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name    string
		input   string
		flagged bool
	}{
		{"unknown https", "mira https://evil.example.com/promo", true},
		{"unknown www", "entra en www.mibanda.com", true},
		{"lookalike host", "https://behance.net.evil.com/x", true},
		{"allow-listed path only", "https://evil.com/behance.net", true},
		{"behance", "https://behance.net/me", false},
		{"www dropbox", "www.dropbox.com/s/abc/rider.pdf", false},
		{"google drive", "https://drive.google.com/file/d/xyz/view", false},
		{"artstation subdomain", "https://maria.artstation.com", false},
		{"github pages", "https://myband.github.io.", false},
		{"external link phrase", "te dejo un enlace externo", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.input)
			if tt.flagged {
				if len(got) != 1 || got[0].Type != TypeExternalLink {
					t.Fatalf("Classify(%q) = %v, want a single external_link infraction", tt.input, got)
				}
				return
			}
			if len(got) != 0 {
				t.Fatalf("Classify(%q) = %v, want none", tt.input, got)
			}
		})
	}
}

func TestClassify_CleanMessages(t *testing.T) {
	c := NewClassifier()

	clean := []string{
		"I have 3 cats",
		"see you in 2025",
		"it costs $5.99",
		"the set runs from 21:00 to 23:30",
		"¿Tocáis también en bodas? Somos 120 invitados",
		"gracias por la información, nos vemos el sábado",
		"the venue is at 42 Main Street",
		"Somos 4 x: 20 euros cada uno",
		"pedido 12345678901234567890",
		"",
	}

	for _, msg := range clean {
		if got := c.Classify(msg); len(got) != 0 {
			t.Errorf("Classify(%q) = %v, want none", msg, got)
		}
	}
}

func TestClassify_MultipleCategories(t *testing.T) {
	c := NewClassifier()

	result := c.Decide("my email is a@b.co and pay via paypal")
	want := []InfractionType{TypeEmail, TypePayment}
	if got := infractionTypesOf(result.Infractions); !reflect.DeepEqual(got, want) {
		t.Fatalf("types = %v, want %v", got, want)
	}
	if result.Severity != SeverityCritical {
		t.Errorf("Severity = %q, want %q", result.Severity, SeverityCritical)
	}
}

func TestClassify_OverlapAcrossCategoriesKept(t *testing.T) {
	c := NewClassifier()

	got := c.Classify("https://facebook.com/djmike")
	want := []InfractionType{TypeSocial, TypeExternalLink}
	if types := infractionTypesOf(got); !reflect.DeepEqual(types, want) {
		t.Fatalf("types = %v, want %v", types, want)
	}
}

func TestClassify_OverlapWithinCategoryDropped(t *testing.T) {
	c := NewClassifier()

	// Caught by both the keyword rule and the generic digit rule.
	got := c.Classify("whatsapp: 612 345 678")
	if len(got) != 1 {
		t.Fatalf("Classify = %v, want 1 infraction", got)
	}
	if got[0].MatchedText != "whatsapp: 612 345 678" {
		t.Errorf("MatchedText = %q, want the keyword match", got[0].MatchedText)
	}
}

func TestClassify_InfractionFields(t *testing.T) {
	c := NewClassifier()

	got := c.Classify("email me at artist@example.com")
	if len(got) != 1 {
		t.Fatalf("Classify = %v, want 1 infraction", got)
	}
	inf := got[0]
	if inf.Confidence != MatchConfidence {
		t.Errorf("Confidence = %v, want %v", inf.Confidence, MatchConfidence)
	}
	if inf.Context != "email me at artist@example.com" {
		t.Errorf("Context = %q, want whole message", inf.Context)
	}
	if inf.Severity != SeveritySevere {
		t.Errorf("Severity = %q, want %q", inf.Severity, SeveritySevere)
	}
}

func TestClassify_Idempotent(t *testing.T) {
	c := NewClassifier()
	msg := "llámame al 612345678 o escríbeme a dj@banda.es, pago por bizum"

	first := c.Decide(msg)
	second := c.Decide(msg)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Decide is not idempotent:\n%v\n%v", first, second)
	}
}

func TestClassify_CustomCatalog(t *testing.T) {
	c := NewClassifierWithCatalog([]Category{{
		Type:     TypePayment,
		Severity: SeveritySevere,
		Rules:    []Rule{rule(`(?i)\bcrypto\b`)},
	}})

	result := c.Decide("send crypto, or paypal")
	if len(result.Infractions) != 1 || result.Infractions[0].MatchedText != "crypto" {
		t.Fatalf("Infractions = %v, want only the custom rule", result.Infractions)
	}
	if result.Severity != SeveritySevere {
		t.Errorf("Severity = %q, want %q", result.Severity, SeveritySevere)
	}
}

func TestContextWindow(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		start, end int
		want       string
	}{
		{
			"clipped both sides",
			"hi MATCH yo",
			3, 8,
			"hi MATCH yo",
		},
		{
			"twenty each side",
			strings.Repeat("x", 30) + "MATCH" + strings.Repeat("y", 30),
			30, 35,
			strings.Repeat("x", 20) + "MATCH" + strings.Repeat("y", 20),
		},
		{
			"counts runes not bytes",
			strings.Repeat("é", 25) + "M" + strings.Repeat("ñ", 25),
			50, 51,
			strings.Repeat("é", 20) + "M" + strings.Repeat("ñ", 20),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := contextWindow(tt.text, tt.start, tt.end); got != tt.want {
				t.Errorf("contextWindow() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAggregate(t *testing.T) {
	w := Infraction{Type: TypeSocial, Severity: SeverityWarning}
	s := Infraction{Type: TypePhone, Severity: SeveritySevere}
	c := Infraction{Type: TypePayment, Severity: SeverityCritical}

	tests := []struct {
		name        string
		infractions []Infraction
		blocked     bool
		severity    Severity
	}{
		{"none", nil, false, SeverityWarning},
		{"warning only", []Infraction{w}, true, SeverityWarning},
		{"severe only", []Infraction{s}, true, SeveritySevere},
		{"warning and severe", []Infraction{w, s}, true, SeveritySevere},
		{"critical first", []Infraction{c, w, s}, true, SeverityCritical},
		{"severe and critical", []Infraction{s, c}, true, SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocked, severity := Aggregate(tt.infractions)
			if blocked != tt.blocked || severity != tt.severity {
				t.Errorf("Aggregate() = (%v, %q), want (%v, %q)", blocked, severity, tt.blocked, tt.severity)
			}
		})
	}
}

func TestDefaultCatalogOrder(t *testing.T) {
	want := []InfractionType{TypeEmail, TypePhone, TypeSocial, TypePayment, TypeExternalLink}
	var got []InfractionType
	for _, cat := range DefaultCatalog() {
		got = append(got, cat.Type)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("catalog order = %v, want %v", got, want)
	}
}

func BenchmarkClassify(b *testing.B) {
	c := NewClassifier()
	msg := "Hola! Nos encantaría contar con vosotros para la boda del 14 de junio, somos unos 120 invitados. ¿Qué incluye el paquete?"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Classify(msg)
	}
}
