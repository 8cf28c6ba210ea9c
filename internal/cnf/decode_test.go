package cnf

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestVendorFloatAt(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want float64
	}{
		{name: "one", raw: []byte{0x80, 0x40, 0x00, 0x00}, want: 1.0},
		{name: "half", raw: []byte{0x00, 0x40, 0x00, 0x00}, want: 0.5},
		{name: "offset", raw: []byte{0x99, 0xBF, 0x9A, 0x99}, want: -0.3},
		{name: "gain", raw: []byte{0x83, 0x3B, 0x6F, 0x12}, want: 0.001},
		{name: "quadratic", raw: []byte{0x06, 0xB5, 0xBD, 0x37}, want: -1.25e-7},
		{name: "zero", raw: []byte{0x00, 0x00, 0x00, 0x00}, want: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := append([]byte{0xFF, 0xFF}, tc.raw...)
			got := VendorFloatAt(buf, 2)
			tol := math.Abs(tc.want) * 1e-6
			if math.Abs(got-tc.want) > tol {
				t.Fatalf("VendorFloatAt = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDurationAt(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want float64
	}{
		{name: "one hour", raw: []byte{0xFF, 0x97, 0x3B, 0x9E, 0xF7, 0xFF, 0xFF, 0xFF}, want: 3600},
		{name: "fractional", raw: []byte{0x4F, 0xE7, 0x23, 0x20, 0xFD, 0xFF, 0xFF, 0xFF}, want: 1234.5678},
		{name: "zero", raw: []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, want: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DurationAt(tc.raw, 0)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("DurationAt = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDateTimeAt(t *testing.T) {
	// 49828196960000000 ticks = 0x00B1067B2B995800
	raw := []byte{0x00, 0x58, 0x99, 0x2B, 0x7B, 0x06, 0xB1, 0x00}
	got := DateTimeAt(raw, 0)
	want := time.Date(2016, 10, 10, 12, 34, 56, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("DateTimeAt = %v, want %v", got, want)
	}
	if got.Location() != time.UTC {
		t.Fatalf("location = %v, want UTC", got.Location())
	}
	if s := got.Format("2006-01-02, 15:04:05"); s != "2016-10-10, 12:34:56" {
		t.Fatalf("formatted = %q", s)
	}
}

func TestDateTimeAtTruncatesSubseconds(t *testing.T) {
	raw := []byte{0x00, 0x58, 0x99, 0x2B, 0x7B, 0x06, 0xB1, 0x00}
	raw[0] = 0xFF // +255 ticks, well under a second
	got := DateTimeAt(raw, 0)
	if got.Nanosecond() != 0 || got.Second() != 56 {
		t.Fatalf("DateTimeAt = %v, want whole second 56", got)
	}
}

func TestUintAt(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09}
	if got := Uint8At(buf, 1); got != 0x02 {
		t.Fatalf("Uint8At = 0x%X", got)
	}
	if got := Uint16At(buf, 1); got != 0x0302 {
		t.Fatalf("Uint16At = 0x%X", got)
	}
	if got := Uint32At(buf, 1); got != 0x05040302 {
		t.Fatalf("Uint32At = 0x%X", got)
	}
	if got := Uint64At(buf, 1); got != 0x0908070605040302 {
		t.Fatalf("Uint64At = 0x%X", got)
	}
}

func TestTrimUnit(t *testing.T) {
	tests := []struct {
		name  string
		field []byte
		want  string
	}{
		{name: "padded", field: []byte(" Bq "), want: "Bq"},
		{name: "kev with nul padding", field: []byte("keV\x00\x00\x00"), want: "keV"},
		{name: "leading digits", field: []byte("12MeV.."), want: "MeV"},
		{name: "no letters", field: []byte("  12 \x00 abc"), want: ""},
		{name: "blank", field: []byte("    "), want: ""},
		{name: "empty", field: nil, want: ""},
		{name: "letters to end", field: []byte("\tchannel"), want: "channel"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := TrimUnit(tc.field); got != tc.want {
				t.Fatalf("TrimUnit(%q) = %q, want %q", tc.field, got, tc.want)
			}
		})
	}
}

func TestVerify(t *testing.T) {
	valid := func() []byte {
		buf := make([]byte, MinFileSize)
		copy(buf[0x1E:], "Associated")
		return buf
	}

	if err := Verify(valid()); err != nil {
		t.Fatalf("Verify valid buffer: %v", err)
	}
	big := append(valid(), make([]byte, 1<<16)...)
	if err := Verify(big); err != nil {
		t.Fatalf("Verify larger buffer: %v", err)
	}

	tests := []struct {
		name string
		buf  []byte
		want error
	}{
		{name: "short", buf: valid()[:MinFileSize-1], want: ErrTooSmall},
		{name: "empty", buf: nil, want: ErrTooSmall},
		{name: "wrong case", buf: func() []byte { b := valid(); copy(b[0x1E:], "associated"); return b }(), want: ErrBadMagic},
		{name: "shifted", buf: func() []byte { b := make([]byte, MinFileSize); copy(b[0x1F:], "Associated"); return b }(), want: ErrBadMagic},
		{name: "zeroes", buf: make([]byte, MinFileSize), want: ErrBadMagic},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Verify(tc.buf)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Verify error = %v, want %v", err, tc.want)
			}
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("error %T is not a *FormatError", err)
			}
			if !strings.HasPrefix(fe.Error(), "cnf format error: verify") {
				t.Fatalf("unexpected message %q", fe.Error())
			}
		})
	}
}

func TestRegionCounts(t *testing.T) {
	spectrum := []uint32{1, 2, 3, 4, 5}
	if got := TotalCounts(spectrum); got != 15 {
		t.Fatalf("TotalCounts = %d, want 15", got)
	}
	tests := []struct {
		name        string
		left, right uint32
		want        uint64
		wantErr     error
	}{
		{name: "interior", left: 1, right: 4, want: 9},
		{name: "whole", left: 0, right: 5, want: 15},
		{name: "empty", left: 2, right: 2, want: 0},
		{name: "inverted", left: 4, right: 1, want: 0},
		{name: "right past end", left: 1, right: 6, wantErr: ErrMarkerRange},
		{name: "left past end", left: 7, right: 3, wantErr: ErrMarkerRange},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := RegionCounts(spectrum, tc.left, tc.right)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("RegionCounts: %v", err)
			}
			if got != tc.want {
				t.Fatalf("RegionCounts = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestTotalCountsDoesNotOverflow(t *testing.T) {
	spectrum := []uint32{math.MaxUint32, math.MaxUint32, math.MaxUint32}
	want := uint64(math.MaxUint32) * 3
	if got := TotalCounts(spectrum); got != want {
		t.Fatalf("TotalCounts = %d, want %d", got, want)
	}
}

func TestCalibrationEnergy(t *testing.T) {
	c := Calibration{Coefficients: [4]float64{1, 2, 3, 4}}
	// 1 + 2*2 + 3*4 + 4*8
	if got := c.Energy(2); got != 49 {
		t.Fatalf("Energy(2) = %v, want 49", got)
	}
	id := Calibration{Coefficients: [4]float64{0, 1, 0, 0}}
	for ch := 1; ch <= 4; ch++ {
		if got := id.Energy(ch); got != float64(ch) {
			t.Fatalf("identity Energy(%d) = %v", ch, got)
		}
	}
}

func TestReportRate(t *testing.T) {
	rep := &Report{Channels: []uint32{10, 0}, Times: AcquisitionTimes{LiveTime: 4}}
	got, err := rep.Rate(0)
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if got != 2.5 {
		t.Fatalf("Rate = %v, want 2.5", got)
	}
	rep.Times.LiveTime = 0
	if _, err := rep.Rate(0); !errors.Is(err, ErrUndefinedRate) {
		t.Fatalf("Rate with zero live time error = %v, want ErrUndefinedRate", err)
	}
}

func TestIsPow2(t *testing.T) {
	for u := int64(0); u < 256; u++ {
		n := u * 256
		want := u != 0 && u&(u-1) == 0
		if got := isPow2(n); got != want {
			t.Fatalf("isPow2(%d) = %v, want %v", n, got, want)
		}
	}
}
