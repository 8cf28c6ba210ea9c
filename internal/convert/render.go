package convert

import (
	"bytes"
	"fmt"
	"io"

	"example.com/cnfconv/internal/config"
	"example.com/cnfconv/internal/report"
)

// ContentType returns the MIME type of an output format.
func ContentType(format string) string {
	switch format {
	case config.FormatJSON:
		return "application/json"
	case config.FormatYAML:
		return "application/yaml"
	case config.FormatPDF:
		return "application/pdf"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Render writes doc to w in the named format.
func Render(w io.Writer, doc report.Document, format string) error {
	switch format {
	case config.FormatText:
		return report.WriteText(w, doc.Report)
	case config.FormatJSON:
		b, err := report.MarshalJSON(doc)
		if err != nil {
			return err
		}
		_, err = w.Write(append(b, '\n'))
		return err
	case config.FormatYAML:
		b, err := report.MarshalYAML(doc)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	case config.FormatPDF:
		return report.WritePDF(w, doc)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderBytes(doc report.Document, format string) ([]byte, error) {
	var buf bytes.Buffer
	if err := Render(&buf, doc, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
