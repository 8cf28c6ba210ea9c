package report

import (
	"encoding/json"
	"os"

	"sigs.k8s.io/yaml"

	"example.com/cnfconv/internal/cnf"
)

// Document is the structured export of one conversion.
type Document struct {
	Source      string      `json:"source,omitempty"`
	SourceSHA   string      `json:"sourceSha256,omitempty"`
	Report      *cnf.Report `json:"report"`
	EnergyScale []float64   `json:"energies,omitempty"`
}

// NewDocument wraps rep with its source identity and per-channel energies.
func NewDocument(rep *cnf.Report, source, sha string) Document {
	energies := make([]float64, rep.NumChannels())
	for i := range energies {
		energies[i] = rep.Calibration.Energy(i + 1)
	}
	return Document{Source: source, SourceSHA: sha, Report: rep, EnergyScale: energies}
}

type documentJSON struct {
	Source      string      `json:"source,omitempty"`
	SourceSHA   string      `json:"sourceSha256,omitempty"`
	Report      *cnf.Report `json:"report"`
	EnergyScale []*float64  `json:"energies,omitempty"`
}

// MarshalJSON writes energies that overflow the calibration polynomial as
// null.
func (d Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(documentJSON{
		Source:      d.Source,
		SourceSHA:   d.SourceSHA,
		Report:      d.Report,
		EnergyScale: cnf.NullableFloats(d.EnergyScale),
	})
}

func (d *Document) UnmarshalJSON(b []byte) error {
	var v documentJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*d = Document{
		Source:      v.Source,
		SourceSHA:   v.SourceSHA,
		Report:      v.Report,
		EnergyScale: cnf.FromNullable(v.EnergyScale),
	}
	return nil
}

func MarshalJSON(doc Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// MarshalYAML renders doc as YAML using its json field names.
func MarshalYAML(doc Document) ([]byte, error) {
	return yaml.Marshal(doc)
}

func SaveJSON(doc Document, out string) error {
	b, err := MarshalJSON(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadJSON(path string) (Document, error) {
	var doc Document
	b, err := os.ReadFile(path)
	if err != nil {
		return doc, err
	}
	err = json.Unmarshal(b, &doc)
	return doc, err
}

func SaveYAML(doc Document, out string) error {
	b, err := MarshalYAML(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadYAML(path string) (Document, error) {
	var doc Document
	b, err := os.ReadFile(path)
	if err != nil {
		return doc, err
	}
	err = yaml.Unmarshal(b, &doc)
	return doc, err
}
