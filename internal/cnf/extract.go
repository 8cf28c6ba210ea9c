package cnf

import (
	"fmt"
	"math/bits"
)

// Strings section layout.
const (
	stringsSectionSize = 0x470

	sampleNameOffset = 0x030
	sampleNameWidth  = 0x40
	sampleIDOffset   = 0x070
	sampleIDWidth    = 0x40
	sampleTypeOffset = 0x0B0
	sampleTypeWidth  = 0x10
	sampleUnitOffset = 0x0C4
	sampleUnitWidth  = 0x40
	userNameOffset   = 0x2D6
	userNameWidth    = 0x18
	sampleDescOffset = 0x36E
	sampleDescWidth  = 0x100
)

// Parameters section layout.
const (
	paramsSectionSize = 0x452
	paramsBlockBase   = 0x30
	calibPtrOffset    = 0x22
	timesPtrOffset    = 0x24
	channelsOffset    = 0x0BA

	calibA0Offset     = 0x44
	energyUnitOffset  = 0x5C
	energyUnitWidth   = 0x10
	startTimeOffset   = 0x01
	realTimeOffset    = 0x09
	liveTimeOffset    = 0x11
	timesBlockSize    = 0x19
	channelsPerUnit   = 256
	spectrumHeaderLen = 0x200
)

// Markers section layout.
const (
	markerLeftOffset  = 0x7A
	markerRightOffset = 0x8A
	markersMinSize    = markerRightOffset + 4
)

// Decode validates buf and extracts the full report from it.
func Decode(buf []byte) (*Report, error) {
	if err := Verify(buf); err != nil {
		return nil, err
	}
	secs, err := LocateSections(buf)
	if err != nil {
		return nil, err
	}
	return Extract(buf, secs)
}

// Extract reads the report out of buf using already resolved section
// offsets. Every read is preceded by a bounds check.
func Extract(buf []byte, secs Sections) (*Report, error) {
	rep := &Report{Sections: secs}

	str := secs.Strings
	if !need(buf, str, stringsSectionSize) {
		return nil, formatErr("strings section", str, ErrTruncated)
	}
	rep.Sample = SampleInfo{
		Name:        fixedString(buf, str+sampleNameOffset, sampleNameWidth),
		ID:          fixedString(buf, str+sampleIDOffset, sampleIDWidth),
		Type:        fixedString(buf, str+sampleTypeOffset, sampleTypeWidth),
		Unit:        fixedString(buf, str+sampleUnitOffset, sampleUnitWidth),
		User:        fixedString(buf, str+userNameOffset, userNameWidth),
		Description: fixedString(buf, str+sampleDescOffset, sampleDescWidth),
	}

	par := secs.Parameters
	if !need(buf, par, paramsSectionSize) {
		return nil, formatErr("parameters section", par, ErrTruncated)
	}

	calib := par + paramsBlockBase + int64(Uint16At(buf, par+calibPtrOffset))
	if !need(buf, calib, energyUnitOffset+energyUnitWidth) {
		return nil, formatErr("calibration block", calib, ErrTruncated)
	}
	for i := range rep.Calibration.Coefficients {
		rep.Calibration.Coefficients[i] = VendorFloatAt(buf, calib+calibA0Offset+int64(4*i))
	}
	unit := calib + energyUnitOffset
	rep.Calibration.EnergyUnit = TrimUnit(buf[unit : unit+energyUnitWidth])

	times := par + paramsBlockBase + int64(Uint16At(buf, par+timesPtrOffset))
	if !need(buf, times, timesBlockSize) {
		return nil, formatErr("times block", times, ErrTruncated)
	}
	rep.Times = AcquisitionTimes{
		Start:    DateTimeAt(buf, times+startTimeOffset),
		RealTime: DurationAt(buf, times+realTimeOffset),
		LiveTime: DurationAt(buf, times+liveTimeOffset),
	}

	n := int64(Uint8At(buf, par+channelsOffset)) * channelsPerUnit
	if !isPow2(n) {
		return nil, formatErr("channel count", par+channelsOffset, fmt.Errorf("%w: %d", ErrChannelCount, n))
	}
	sp := secs.Spectrum
	if !need(buf, sp, spectrumHeaderLen+4*n) {
		return nil, formatErr("spectrum section", sp, fmt.Errorf("%w: %d channels", ErrTruncated, n))
	}
	rep.Channels = make([]uint32, n)
	for i := range rep.Channels {
		rep.Channels[i] = Uint32At(buf, sp+spectrumHeaderLen+int64(4*i))
	}
	rep.TotalCounts = TotalCounts(rep.Channels)

	mark := secs.Markers
	if !need(buf, mark, markersMinSize) {
		return nil, formatErr("markers section", mark, ErrTruncated)
	}
	rep.Markers.Left = Uint32At(buf, mark+markerLeftOffset)
	rep.Markers.Right = Uint32At(buf, mark+markerRightOffset)
	counts, err := RegionCounts(rep.Channels, rep.Markers.Left, rep.Markers.Right)
	if err != nil {
		return nil, formatErr("markers section", mark+markerLeftOffset, err)
	}
	rep.Markers.Counts = counts
	return rep, nil
}

// TotalCounts sums all channels.
func TotalCounts(channels []uint32) uint64 {
	var total uint64
	for _, c := range channels {
		total += uint64(c)
	}
	return total
}

// RegionCounts sums channels over the storage index range [left, right).
// Bounds past the spectrum are rejected with ErrMarkerRange; an empty or
// inverted range sums to zero.
func RegionCounts(channels []uint32, left, right uint32) (uint64, error) {
	n := uint64(len(channels))
	if uint64(left) > n || uint64(right) > n {
		return 0, fmt.Errorf("%w: [%d, %d) with %d channels", ErrMarkerRange, left, right, n)
	}
	if left >= right {
		return 0, nil
	}
	return TotalCounts(channels[left:right]), nil
}

func isPow2(n int64) bool {
	return n > 0 && bits.OnesCount64(uint64(n)) == 1
}
