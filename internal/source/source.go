// Package source holds the types shared by collectors, the summarizer and the
// report assembler.
package source

import "strings"

// NoDataPlaceholder is the text handed to the summarizer when a branch has
// nothing to report, whether because of failures or because of empty scope.
const NoDataPlaceholder = "no data found for this source"

type Kind int

const (
	Relational Kind = iota
	Directory
	Measurement
	Telemetry
)

// Order is the fixed section order of a report.
var Order = []Kind{Relational, Directory, Measurement, Telemetry}

func (k Kind) String() string {
	switch k {
	case Relational:
		return "relational"
	case Directory:
		return "directory"
	case Measurement:
		return "measurement"
	case Telemetry:
		return "telemetry"
	default:
		return "unknown"
	}
}

// Title is the section heading used in the report.
func (k Kind) Title() string {
	switch k {
	case Relational:
		return "Telecommunications and ISP Summary"
	case Directory:
		return "Data Centers"
	case Measurement:
		return "Communications Tests (OONI Explorer)"
	case Telemetry:
		return "Device and Domain Data (Cloudflare Radar)"
	default:
		return "Unknown"
	}
}

// RawContext is unsynthesized, source-tagged text produced by a collector.
type RawContext struct {
	Source      Kind
	Text        string
	Placeholder bool
}

func Placeholder(k Kind) RawContext {
	return RawContext{Source: k, Text: NoDataPlaceholder, Placeholder: true}
}

// NewRawContext returns a placeholder when text is blank.
func NewRawContext(k Kind, text string) RawContext {
	if strings.TrimSpace(text) == "" {
		return Placeholder(k)
	}
	return RawContext{Source: k, Text: text}
}

// SectionReport is the synthesized text for one source. Err is set when the
// branch failed; Body then carries the inline error note.
type SectionReport struct {
	Source Kind
	Title  string
	Body   string
	Err    error
}
