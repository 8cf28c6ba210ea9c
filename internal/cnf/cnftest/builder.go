// Package cnftest builds synthetic CNF buffers for tests and sample files.
// The layout is written out independently of the decoder so that tests
// exercise the decoder's offsets rather than reuse them.
package cnftest

import (
	"encoding/binary"
	"math"
	"time"

	"example.com/cnfconv/internal/cnf"
)

const (
	tableStart = 0x70
	entrySize  = 0x30

	ParametersAt = 0x1000
	StringsAt    = 0x1500
	MarkersAt    = 0x1A00
	SpectrumAt   = 0x1C00

	calibPtr = 0x100
	timesPtr = 0x200
)

// Builder describes the content of a synthetic CNF file.
type Builder struct {
	Sample       cnf.SampleInfo
	Coefficients [4]float64
	EnergyUnit   string
	Start        time.Time
	RealTime     float64
	LiveTime     float64
	Channels     []uint32
	// ChannelUnits is the raw channel-count byte (channels / 256). Zero
	// derives it from len(Channels).
	ChannelUnits uint8
	MarkerLeft   uint32
	MarkerRight  uint32
	// Order lists the section identifiers written to the section table.
	// Nil writes all four known sections.
	Order []uint32
	// Unknown identifiers are interleaved after every known entry.
	Unknown []uint32
}

// New returns a builder with a plausible 1024-channel measurement.
func New() *Builder {
	ch := make([]uint32, 1024)
	for i := range ch {
		ch[i] = uint32(i % 17)
	}
	return &Builder{
		Sample: cnf.SampleInfo{
			Name:        "Soil sample 7",
			ID:          "S-0007",
			Type:        "soil",
			Unit:        "kg",
			User:        "lab",
			Description: "synthetic spectrum",
		},
		Coefficients: [4]float64{-0.3, 0.5, 0, 0},
		EnergyUnit:   "keV",
		Start:        time.Date(2016, 10, 10, 12, 34, 56, 0, time.UTC),
		RealTime:     3600,
		LiveTime:     3550.5,
		Channels:     ch,
		MarkerLeft:   100,
		MarkerRight:  200,
	}
}

func (b *Builder) units() int {
	if b.ChannelUnits != 0 {
		return int(b.ChannelUnits)
	}
	u := (len(b.Channels) + 255) / 256
	if u == 0 {
		u = 1
	}
	return u
}

// Bytes renders the file.
func (b *Builder) Bytes() []byte {
	n := b.units() * 256
	size := SpectrumAt + 0x200 + 4*n
	if size < cnf.MinFileSize {
		size = cnf.MinFileSize
	}
	buf := make([]byte, size)
	copy(buf[0x1E:], "Associated")

	order := b.Order
	if order == nil {
		order = []uint32{cnf.SectionParameters, cnf.SectionStrings, cnf.SectionSpectrum, cnf.SectionMarkers}
	}
	entry := 0
	putEntry := func(id uint32, off int) {
		oh := tableStart + entry*entrySize
		binary.LittleEndian.PutUint32(buf[oh:], id)
		binary.LittleEndian.PutUint32(buf[oh+0x0A:], uint32(off))
		entry++
	}
	for i, id := range order {
		putEntry(id, sectionOffset(id))
		if i < len(b.Unknown) {
			putEntry(b.Unknown[i], 0x800+i*0x10)
		}
	}

	for _, id := range []uint32{cnf.SectionParameters, cnf.SectionStrings, cnf.SectionSpectrum, cnf.SectionMarkers} {
		binary.LittleEndian.PutUint32(buf[sectionOffset(id):], id)
	}

	str := StringsAt
	copy(buf[str+0x030:str+0x070], b.Sample.Name)
	copy(buf[str+0x070:str+0x0B0], b.Sample.ID)
	copy(buf[str+0x0B0:str+0x0C0], b.Sample.Type)
	copy(buf[str+0x0C4:str+0x104], b.Sample.Unit)
	copy(buf[str+0x2D6:str+0x2EE], b.Sample.User)
	copy(buf[str+0x36E:str+0x46E], b.Sample.Description)

	par := ParametersAt
	binary.LittleEndian.PutUint16(buf[par+0x22:], calibPtr)
	binary.LittleEndian.PutUint16(buf[par+0x24:], timesPtr)
	buf[par+0xBA] = uint8(b.units())

	calib := par + 0x30 + calibPtr
	for i, a := range b.Coefficients {
		PutVendorFloat(buf, calib+0x44+4*i, a)
	}
	copy(buf[calib+0x5C:calib+0x6C], " "+b.EnergyUnit+"   ")

	times := par + 0x30 + timesPtr
	PutDateTime(buf, times+0x01, b.Start)
	PutDuration(buf, times+0x09, b.RealTime)
	PutDuration(buf, times+0x11, b.LiveTime)

	for i, c := range b.Channels {
		if i >= n {
			break
		}
		binary.LittleEndian.PutUint32(buf[SpectrumAt+0x200+4*i:], c)
	}

	binary.LittleEndian.PutUint32(buf[MarkersAt+0x7A:], b.MarkerLeft)
	binary.LittleEndian.PutUint32(buf[MarkersAt+0x8A:], b.MarkerRight)
	return buf
}

// Sections returns the offsets Bytes writes for the four known sections.
func Sections() cnf.Sections {
	return cnf.Sections{
		Parameters: ParametersAt,
		Strings:    StringsAt,
		Spectrum:   SpectrumAt,
		Markers:    MarkersAt,
	}
}

func sectionOffset(id uint32) int {
	switch id {
	case cnf.SectionParameters:
		return ParametersAt
	case cnf.SectionStrings:
		return StringsAt
	case cnf.SectionSpectrum:
		return SpectrumAt
	case cnf.SectionMarkers:
		return MarkersAt
	}
	return 0
}

// PutVendorFloat stores v in the instrument's swapped-word, scaled layout.
func PutVendorFloat(buf []byte, off int, v float64) {
	bits := math.Float32bits(float32(v * 4))
	binary.LittleEndian.PutUint16(buf[off:], uint16(bits>>16))
	binary.LittleEndian.PutUint16(buf[off+2:], uint16(bits))
}

// PutDuration stores a period in seconds as complemented 100 ns ticks.
func PutDuration(buf []byte, off int, seconds float64) {
	ticks := uint64(math.Round(seconds * 1e7))
	binary.LittleEndian.PutUint64(buf[off:], ^ticks)
}

// PutDateTime stores t as 100 ns ticks since the MJD epoch.
func PutDateTime(buf []byte, off int, t time.Time) {
	ticks := uint64(t.Unix()+3_506_716_800) * 10_000_000
	binary.LittleEndian.PutUint64(buf[off:], ticks)
}
