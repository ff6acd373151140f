// Package bytesutil renders byte counts for listings and transfer summaries.
package bytesutil

import "fmt"

const (
	KILO int64 = 1000        // 1000 power 1 (10 power 3)
	KIBI int64 = 1024        // 1024 power 1 (2 power 10)
	MEGA       = KILO * KILO // 1000 power 2 (10 power 6)
	MEBI       = KIBI * KIBI // 1024 power 2 (2 power 20)
	GIGA       = MEGA * KILO // 1000 power 3 (10 power 9)
	GIBI       = MEBI * KIBI // 1024 power 3 (2 power 30)
	TERA       = GIGA * KILO // 1000 power 4 (10 power 12)
	TEBI       = GIBI * KIBI // 1024 power 4 (2 power 40)
	PETA       = TERA * KILO // 1000 power 5 (10 power 15)
	PEBI       = TEBI * KIBI // 1024 power 5 (2 power 50)
	EXA        = PETA * KILO // 1000 power 6 (10 power 18)
	EXBI       = PEBI * KIBI // 1024 power 6 (2 power 60)
)

type unit struct {
	size   int64
	suffix string
}

// largest first
var binaryUnits = []unit{{EXBI, "EiB"}, {PEBI, "PiB"}, {TEBI, "TiB"}, {GIBI, "GiB"}, {MEBI, "MiB"}, {KIBI, "KiB"}}

var decimalUnits = []unit{{EXA, "EB"}, {PETA, "PB"}, {TERA, "TB"}, {GIGA, "GB"}, {MEGA, "MB"}, {KILO, "KB"}}

func format(size int64, units []unit) string {
	if size < 0 {
		return ""
	}
	for _, u := range units {
		if size >= u.size {
			return fmt.Sprintf("%.2f %s", float64(size)/float64(u.size), u.suffix)
		}
	}
	return fmt.Sprintf("%d B", size)
}

// BinaryFormat renders size in powers of 1024, e.g. "2.09 KiB". Negative sizes render empty.
func BinaryFormat(size int64) string {
	return format(size, binaryUnits)
}

// DecimalFormat renders size in powers of 1000, e.g. "2.14 KB". Negative sizes render empty.
func DecimalFormat(size int64) string {
	return format(size, decimalUnits)
}
