package processor

import (
	"bytes"

	csvparser "github.com/rezonia/nfe-auditor/internal/parser/csv"
)

// Format is the detected input format
type Format int

const (
	FormatUnknown Format = iota
	FormatXML
	FormatCSV
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatXML:
		return "xml"
	case FormatCSV:
		return "csv"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DetectFormat identifies the input format from content
func DetectFormat(data []byte) Format {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))
	if len(trimmed) == 0 {
		return FormatUnknown
	}

	switch trimmed[0] {
	case '<':
		return FormatXML
	case '{', '[':
		return FormatJSON
	}
	if csvparser.CanParse(trimmed) {
		return FormatCSV
	}
	return FormatUnknown
}
