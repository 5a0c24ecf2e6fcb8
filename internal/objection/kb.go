// Package objection matches inbound reply text against an ordered
// knowledge base of known objections. Responses come only from approved
// templates; nothing here invents rebuttals.
package objection

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CategoryUnknown is returned when no knowledge-base entry matches.
const CategoryUnknown = "unknown"

// Entry is one knowledge-base objection. Patterns are case-insensitive
// substrings; declaration order is the tie-breaker.
type Entry struct {
	Category         string   `yaml:"category"`
	Patterns         []string `yaml:"patterns"`
	Subject          string   `yaml:"subject"`
	ResponseTemplate string   `yaml:"response_template"`
}

// KB is the ordered list of objection entries.
type KB []Entry

type kbFile struct {
	Objections []Entry `yaml:"objections"`
}

// Load reads a knowledge base from a YAML file. An empty path returns the
// built-in default.
func Load(path string) (KB, error) {
	if path == "" {
		return DefaultKB(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read objection kb: %w", err)
	}

	var file kbFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse objection kb: %w", err)
	}
	if len(file.Objections) == 0 {
		return nil, fmt.Errorf("objection kb %s has no entries", path)
	}

	for i, entry := range file.Objections {
		if entry.Category == "" {
			return nil, fmt.Errorf("objection kb: entry %d has no category", i)
		}
		if len(entry.Patterns) == 0 {
			return nil, fmt.Errorf("objection kb: category %s has no patterns", entry.Category)
		}
	}

	return KB(file.Objections), nil
}

// DefaultKB is the built-in objection set. Templates use the placeholders
// {company_name}, {brand_names} and {booking_link}.
func DefaultKB() KB {
	return KB{
		{
			Category: "already_have_supplier",
			Patterns: []string{"already have a supplier", "existing supplier", "current supplier", "have a distributor", "work with someone"},
			Subject:  "Re: {company_name}",
			ResponseTemplate: "Makes sense — most stores we work with kept their main supplier.\n\n" +
				"We usually slot in as a second source for {brand_names}, so you have backup stock and a price check.\n\n" +
				"Worth a quick look? {booking_link}",
		},
		{
			Category: "pricing",
			Patterns: []string{"too expensive", "cheaper elsewhere", "better price", "pricing", "what are your prices"},
			Subject:  "Re: {company_name}",
			ResponseTemplate: "Fair question. Pricing depends on the lines and volume, so numbers over email rarely land right.\n\n" +
				"Fastest way is a short call where I can quote {brand_names} for your situation.\n\n{booking_link}",
		},
		{
			Category: "catalog_request",
			Patterns: []string{"send your catalog", "send a catalog", "price list", "send me your list", "full list"},
			Subject:  "Re: {company_name}",
			ResponseTemplate: "We keep sheets curated per store rather than sending one big list — it keeps it relevant.\n\n" +
				"If you grab a slot I can walk you through the lines that fit {company_name}: {booking_link}",
		},
		{
			Category: "not_interested",
			Patterns: []string{"not interested", "no thanks", "not for us", "pass on this"},
			Subject:  "Re: {company_name}",
			ResponseTemplate: "Understood — appreciate the straight answer.\n\n" +
				"If stock on {brand_names} ever gets tight, the door stays open: {booking_link}",
		},
		{
			Category:         "bad_timing",
			Patterns:         []string{"not right now", "maybe later", "next quarter", "busy season", "circle back"},
			Subject:          "Re: {company_name}",
			ResponseTemplate: "No problem at all. I'll leave the calendar here so you can pick a moment that works when things calm down: {booking_link}",
		},
	}
}
