package imgdate

import (
	"encoding/binary"
	"testing"
)

func TestExtractHint(t *testing.T) {
	testCase := []struct {
		name string
		tags TagStore
		want Hint
	}{
		{"nil", nil, DefaultHint},
		{"no tags", NoTags, DefaultHint},
		{"orientation", TagMap{TagOrientation: 6}, Hint{Orientation: OrientationRotate270}},
		{"orientation sequence", TagMap{TagOrientation: []int{8}}, Hint{Orientation: OrientationRotate90}},
		{"orientation out of range", TagMap{TagOrientation: 9}, DefaultHint},
		{"orientation zero", TagMap{TagOrientation: 0}, DefaultHint},
		{"orientation string", TagMap{TagOrientation: "6"}, DefaultHint},
		{"white is zero", TagMap{TagPhotometric: 0}, Hint{Orientation: 1, WhiteIsZero: true}},
		{"black is zero", TagMap{TagPhotometric: 1}, DefaultHint},
		{"rgb photometric", TagMap{TagPhotometric: 2}, DefaultHint},
		{"bounds", TagMap{TagMinSampleValue: 10, TagMaxSampleValue: []int{4000}}, Hint{Orientation: 1, Min: 10, Max: 4000, HasBounds: true}},
		{"float bounds", TagMap{TagMinSampleValue: 0.5, TagMaxSampleValue: []float64{1.5, 3}}, Hint{Orientation: 1, Min: 0.5, Max: 1.5, HasBounds: true}},
		{"string bounds", TagMap{TagMinSampleValue: " 12.5\x00", TagMaxSampleValue: "100"}, Hint{Orientation: 1, Min: 12.5, Max: 100, HasBounds: true}},
		{"malformed bound", TagMap{TagMinSampleValue: "abc", TagMaxSampleValue: 100}, DefaultHint},
		{"missing bound", TagMap{TagMaxSampleValue: 100}, DefaultHint},
		{"empty sequence", TagMap{TagMinSampleValue: []int{}, TagMaxSampleValue: 100}, DefaultHint},
	}
	for _, tc := range testCase {
		if got := ExtractHint(tc.tags); got != tc.want {
			t.Errorf("%s: expected %+v; got %+v", tc.name, tc.want, got)
		}
	}
}

func TestHintBounds(t *testing.T) {
	testCase := []struct {
		hint   Hint
		lo, hi float64
		ok     bool
	}{
		{Hint{}, 0, 0, false},
		{Hint{Min: 100, Max: 50, HasBounds: true}, 0, 0, false},
		{Hint{Min: 50, Max: 50, HasBounds: true}, 0, 0, false},
		{Hint{Min: 0, Max: 4095, HasBounds: true}, 0, 4095, true},
		{Hint{Min: 0, Max: 4095}, 0, 0, false},
	}
	for _, tc := range testCase {
		lo, hi, ok := tc.hint.bounds()
		if lo != tc.lo || hi != tc.hi || ok != tc.ok {
			t.Errorf("%+v: expected %v %v %v; got %v %v %v", tc.hint, tc.lo, tc.hi, tc.ok, lo, hi, ok)
		}
	}
}

func TestExtractHintIFD(t *testing.T) {
	order := binary.BigEndian
	data := grayTIFF(order, 1, 1, 16, sampleUint, PhotometricWhiteIsZero, []byte{0, 0},
		shortField(order, TagOrientation, 3),
		shortField(order, TagMinSampleValue, 100),
		shortField(order, TagMaxSampleValue, 900),
	)
	dir, _, err := readIFD0(data)
	if err != nil {
		t.Fatal(err)
	}
	want := Hint{Orientation: OrientationRotate180, WhiteIsZero: true, Min: 100, Max: 900, HasBounds: true}
	if got := ExtractHint(IFDTags{Dir: dir}); got != want {
		t.Errorf("expected %+v; got %+v", want, got)
	}
}
