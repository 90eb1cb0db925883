package common

import (
	"fmt"
	"math"
)

func TruncU8[L ~int | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64](v L) uint8 {
	if v < 0 || uint64(v) > math.MaxUint8 {
		panic(fmt.Sprintf("overflow: %d does not fit in uint8", v))
	}
	return uint8(v)
}

func TruncU32[L ~int | ~int64 | ~uint | ~uint32 | ~uint64](v L) uint32 {
	if v < 0 || uint64(v) > math.MaxUint32 {
		panic(fmt.Sprintf("overflow: %d does not fit in uint32", v))
	}
	return uint32(v)
}

// TruncI32 narrows an id that may be -1 (unassigned).
func TruncI32[L ~int | ~int64](v L) int32 {
	if v < math.MinInt32 || v > math.MaxInt32 {
		panic(fmt.Sprintf("overflow: %d does not fit in int32", v))
	}
	return int32(v)
}
