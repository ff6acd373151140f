package bytesutil

import (
	"strings"
	"testing"
)

func FuzzBinaryFormat(f *testing.F) {
	f.Add(int64(0))
	f.Add(int64(1024))
	f.Add(int64(2140))
	f.Add(int64(-1))
	f.Fuzz(func(t *testing.T, size int64) {
		s := BinaryFormat(size)
		if (size < 0) != (s == "") {
			t.Errorf("BinaryFormat(%d) = %q", size, s)
		}
		if size >= KIBI && !strings.HasSuffix(s, "iB") {
			t.Errorf("BinaryFormat(%d) = %q, want a binary unit", size, s)
		}
	})
}

func FuzzDecimalFormat(f *testing.F) {
	f.Add(int64(0))
	f.Add(int64(1000))
	f.Add(int64(2140))
	f.Add(int64(-1))
	f.Fuzz(func(t *testing.T, size int64) {
		s := DecimalFormat(size)
		if (size < 0) != (s == "") {
			t.Errorf("DecimalFormat(%d) = %q", size, s)
		}
	})
}
