package drafts

import "strings"

// Vars are the placeholder values available to response templates.
type Vars struct {
	CompanyName string
	BrandNames  []string
	BookingLink string
}

// Render substitutes the {company_name}, {brand_names} and {booking_link}
// placeholders. The booking link is always present in the result: when the
// template does not reference it, it is appended, so every approved
// response ends with a way to book.
func Render(template string, vars Vars) string {
	brandNames := "relevant lines"
	if len(vars.BrandNames) > 0 {
		names := vars.BrandNames
		if len(names) > 3 {
			names = names[:3]
		}
		brandNames = strings.Join(names, ", ")
	}

	replacer := strings.NewReplacer(
		"{company_name}", vars.CompanyName,
		"{brand_names}", brandNames,
		"{booking_link}", vars.BookingLink,
	)
	rendered := replacer.Replace(template)

	if vars.BookingLink != "" && !strings.Contains(rendered, vars.BookingLink) {
		rendered += "\n\n" + vars.BookingLink
	}
	return rendered
}

// RenderSubject substitutes placeholders in a subject line, defaulting to
// "Re: <company>" when the template is empty.
func RenderSubject(template string, vars Vars) string {
	if template == "" {
		return "Re: " + vars.CompanyName
	}
	return strings.NewReplacer("{company_name}", vars.CompanyName).Replace(template)
}
