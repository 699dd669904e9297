package richtext

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUTF16Len(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "ascii", text: "hello", want: 5},
		{name: "two byte utf8", text: "café", want: 4},
		{name: "astral emoji", text: "😀", want: 2},
		{name: "mixed", text: "a😀b", want: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UTF16Len(tt.text))
		})
	}
}

func TestToByteRange(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		r      Range
		want   ByteRange
		wantOK bool
	}{
		{
			name:   "ascii",
			text:   "hello @alice",
			r:      Range{Location: 6, Length: 6},
			want:   ByteRange{Start: 6, End: 12},
			wantOK: true,
		},
		{
			name:   "after emoji",
			text:   "😀 @bob",
			r:      Range{Location: 3, Length: 4},
			want:   ByteRange{Start: 5, End: 9},
			wantOK: true,
		},
		{
			name:   "covering emoji",
			text:   "x😀y",
			r:      Range{Location: 1, Length: 2},
			want:   ByteRange{Start: 1, End: 5},
			wantOK: true,
		},
		{
			name:   "empty range at end",
			text:   "abc",
			r:      Range{Location: 3, Length: 0},
			want:   ByteRange{Start: 3, End: 3},
			wantOK: true,
		},
		{
			name:   "start splits surrogate pair",
			text:   "x😀y",
			r:      Range{Location: 2, Length: 1},
			wantOK: false,
		},
		{
			name:   "end splits surrogate pair",
			text:   "x😀y",
			r:      Range{Location: 0, Length: 2},
			wantOK: false,
		},
		{
			name:   "past end",
			text:   "abc",
			r:      Range{Location: 2, Length: 5},
			wantOK: false,
		},
		{
			name:   "negative location",
			text:   "abc",
			r:      Range{Location: -1, Length: 1},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToByteRange(tt.text, tt.r)
			require.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestToUTF16Range(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		br     ByteRange
		want   Range
		wantOK bool
	}{
		{
			name:   "ascii",
			text:   "hello",
			br:     ByteRange{Start: 1, End: 4},
			want:   Range{Location: 1, Length: 3},
			wantOK: true,
		},
		{
			name:   "after accent",
			text:   "café #tag",
			br:     ByteRange{Start: 6, End: 10},
			want:   Range{Location: 5, Length: 4},
			wantOK: true,
		},
		{
			name:   "inside multi-byte sequence",
			text:   "café",
			br:     ByteRange{Start: 4, End: 5},
			wantOK: false,
		},
		{
			name:   "end before start",
			text:   "hello",
			br:     ByteRange{Start: 3, End: 2},
			wantOK: false,
		},
		{
			name:   "past end",
			text:   "hello",
			br:     ByteRange{Start: 0, End: 6},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ToUTF16Range(tt.text, tt.br)
			require.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRangeIntersects(t *testing.T) {
	a := Range{Location: 2, Length: 3}

	assert.True(t, a.Intersects(Range{Location: 4, Length: 2}))
	assert.True(t, a.Intersects(Range{Location: 0, Length: 10}))
	assert.False(t, a.Intersects(Range{Location: 5, Length: 2}), "touching at end")
	assert.False(t, a.Intersects(Range{Location: 0, Length: 2}), "touching at start")
	assert.False(t, a.Intersects(Range{Location: 3, Length: 0}), "empty range")
	assert.False(t, Range{Location: 3}.Intersects(a), "empty receiver")
}

func FuzzOffsetRoundTrip(f *testing.F) {
	f.Add("hello @alice", 6, 6)
	f.Add("😀 #tag 🎉", 3, 4)
	f.Add("naïve café", 0, 10)

	f.Fuzz(func(t *testing.T, text string, loc, length int) {
		if !utf8.ValidString(text) {
			t.Skip()
		}
		r := Range{Location: loc, Length: length}
		br, ok := ToByteRange(text, r)
		if !ok {
			return
		}
		back, ok := ToUTF16Range(text, br)
		if !ok {
			t.Fatalf("byte range %+v from %+v did not map back", br, r)
		}
		if back != r {
			t.Fatalf("round trip %+v -> %+v -> %+v", r, br, back)
		}
	})
}
