package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectDelta(t *testing.T) {
	type testcase struct {
		name      string
		old, new  string
		wantStart int
		wantSize  int
	}

	tcs := []testcase{
		{"identical", "hello", "hello", 0, 0},
		{"new is prefix of old", "hello world", "hello", 5, 0},
		{"new appends to old", "hello", "hello world", 5, 6},
		{"middle edit via prefix+suffix", "hello world", "hellX world", 4, 1},
		{"first write", "", "hello", 0, 5},
		{"total replace", "hello", "goodbye", 0, 7},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			r := require.New(t)
			start, size := detectDelta([]byte(tc.old), []byte(tc.new))
			r.Equal(tc.wantStart, start)
			r.Equal(tc.wantSize, size)
			r.LessOrEqual(start+size, len(tc.new))
		})
	}
}
