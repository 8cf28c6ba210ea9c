package cnf

import (
	"fmt"

	"example.com/cnfconv/internal/common"
)

const (
	sectionTableStart  = 0x70
	sectionEntrySize   = 0x30
	sectionEntryOffset = 0x0A

	SectionParameters uint32 = 0x00012000
	SectionStrings    uint32 = 0x00012001
	SectionMarkers    uint32 = 0x00012004
	SectionSpectrum   uint32 = 0x00012005
)

// SectionName returns a readable name for a known section identifier.
func SectionName(id uint32) string {
	switch id {
	case SectionParameters:
		return "parameters"
	case SectionStrings:
		return "strings"
	case SectionMarkers:
		return "markers"
	case SectionSpectrum:
		return "spectrum"
	default:
		return fmt.Sprintf("0x%08X", id)
	}
}

// LocateSections walks the section table and resolves the offsets of the
// parameters, strings, spectrum and marker sections. Every known section
// must repeat its identifier in its first four bytes. Unknown identifiers
// are skipped.
func LocateSections(buf []byte) (Sections, error) {
	var secs Sections
	for i := int64(0); ; i++ {
		oh := sectionTableStart + i*sectionEntrySize
		if !need(buf, oh, sectionEntrySize) {
			return secs, formatErr("section table", oh, ErrTruncated)
		}
		id := Uint32At(buf, oh)
		if id == 0 {
			break
		}
		offs := int64(Uint32At(buf, oh+sectionEntryOffset))

		switch id {
		case SectionParameters:
			secs.Parameters = offs
		case SectionStrings:
			secs.Strings = offs
		case SectionSpectrum:
			secs.Spectrum = offs
		case SectionMarkers:
			secs.Markers = offs
		default:
			common.Debugf("section table entry %d: skipping unknown id 0x%08X", i, id)
			continue
		}

		op := SectionName(id) + " section header"
		if !need(buf, offs, 4) {
			return secs, formatErr(op, offs, ErrTruncated)
		}
		if got := Uint32At(buf, offs); got != id {
			return secs, formatErr(op, offs, fmt.Errorf("%w: found 0x%08X, want 0x%08X", ErrSectionMismatch, got, id))
		}
	}

	required := []struct {
		id  uint32
		off int64
	}{
		{SectionParameters, secs.Parameters},
		{SectionStrings, secs.Strings},
		{SectionSpectrum, secs.Spectrum},
		{SectionMarkers, secs.Markers},
	}
	for _, m := range required {
		if m.off == 0 {
			return secs, formatErr("locate sections", -1, fmt.Errorf("%w: %s", ErrSectionMissing, SectionName(m.id)))
		}
	}
	return secs, nil
}
