// Package render turns an assembled Markdown report into a standalone HTML page.
package render

import (
	_ "embed"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed style.css
var styleCSS string

// Meta is shown above the report body. Empty fields are omitted.
type Meta struct {
	Query     string
	RunID     string
	Countries []string
	Horizon   int
	Generated string
}

var (
	md = goldmark.New(goldmark.WithExtensions(extension.GFM))

	reSectionError = regexp.MustCompile(`(?s)<h2([^>]*)>([^<]*)</h2>\s*<p>Error: `)
)

// HTML renders markdown with GFM tables into a complete document.
func HTML(markdown string, meta Meta) (string, error) {
	var content strings.Builder
	if err := md.Convert([]byte(markdown), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>Telecom Radar Report</title>" +
		"<style>" + styleCSS + "</style></head><body>" +
		"<div class='report-wrap'>" +
		"<div class='report-meta'>" + metaHTML(meta) + "</div>" +
		"<div class='report-html'>" + markSectionErrors(content.String()) + "</div>" +
		"</div></body></html>", nil
}

// markSectionErrors flags headings whose body is an inline error note.
func markSectionErrors(contentHTML string) string {
	return reSectionError.ReplaceAllString(contentHTML, `<h2$1 data-section-error="true">$2</h2>`+"\n<p>Error: ")
}

func metaHTML(m Meta) string {
	var rows []string
	add := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		rows = append(rows, "<div><strong>"+label+":</strong> "+html.EscapeString(value)+"</div>")
	}
	add("Query", m.Query)
	add("Countries", strings.Join(m.Countries, ", "))
	if m.Horizon > 0 {
		add("Horizon", fmt.Sprintf("last %d days", m.Horizon))
	}
	add("Generated", m.Generated)
	add("Run", m.RunID)
	return strings.Join(rows, "")
}
