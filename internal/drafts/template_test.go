package drafts

import (
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	vars := Vars{
		CompanyName: "Acme Surf Co",
		BrandNames:  []string{"Northwind", "Tidecraft"},
		BookingLink: "https://cal.example.com/intro",
	}

	rendered := Render("Hi {company_name}, we carry {brand_names}. Book here: {booking_link}", vars)

	if !strings.Contains(rendered, "Acme Surf Co") {
		t.Error("company name not substituted")
	}
	if !strings.Contains(rendered, "Northwind, Tidecraft") {
		t.Error("brand names not substituted")
	}
	if strings.Count(rendered, vars.BookingLink) != 1 {
		t.Error("booking link should appear exactly once when the template references it")
	}
}

func TestRenderAppendsBookingLink(t *testing.T) {
	vars := Vars{CompanyName: "Acme", BookingLink: "https://cal.example.com/intro"}
	rendered := Render("Short reply with no link.", vars)
	if !strings.HasSuffix(rendered, vars.BookingLink) {
		t.Errorf("booking link should be appended, got %q", rendered)
	}
}

func TestRenderBrandCapAndFallback(t *testing.T) {
	vars := Vars{
		CompanyName: "Acme",
		BrandNames:  []string{"A", "B", "C", "D"},
		BookingLink: "https://cal.example.com/intro",
	}
	rendered := Render("{brand_names}", vars)
	if strings.Contains(rendered, "D") {
		t.Error("at most three brands may be rendered")
	}

	rendered = Render("{brand_names}", Vars{CompanyName: "Acme", BookingLink: "x"})
	if !strings.Contains(rendered, "relevant lines") {
		t.Error("empty brand list should fall back to a generic phrase")
	}
}

func TestRenderSubject(t *testing.T) {
	vars := Vars{CompanyName: "Acme"}
	if got := RenderSubject("", vars); got != "Re: Acme" {
		t.Errorf("empty subject template: got %q", got)
	}
	if got := RenderSubject("Quick one for {company_name}", vars); got != "Quick one for Acme" {
		t.Errorf("subject template: got %q", got)
	}
}
