package neuralnet

import "sync"

// escapeTables[0][mask] counts the rolls that carry a chequer past the 12
// points ahead of it when mask marks which of those points are made.
// escapeTables[1] only counts rolls that land beyond the first made point.
var (
	escapeTables [2][0x1000]int
	escapesOnce  sync.Once
)

func initEscapes() {
	for mask := 0; mask < 0x1000; mask++ {
		low := 0
		for low < 12 && mask&(1<<low) == 0 {
			low++
		}
		for n0 := 0; n0 <= 5; n0++ {
			for n1 := 0; n1 <= n0; n1++ {
				land := n0 + n1 + 1
				if mask&(1<<land) != 0 || (mask&(1<<n0) != 0 && mask&(1<<n1) != 0) {
					continue
				}
				w := 2
				if n0 == n1 {
					w = 1
				}
				escapeTables[0][mask] += w
				if mask != 0 && land > low {
					escapeTables[1][mask] += w
				}
			}
		}
	}
}

// madeMask marks the made points of side among the min(n, 12) points in
// front of a chequer on slot n, nearest first.
func madeMask(side [25]uint8, n int) int {
	m := n
	if m > 12 {
		m = 12
	}
	mask := 0
	for i := 0; i < m; i++ {
		if side[24+i-n] > 1 {
			mask |= 1 << i
		}
	}
	return mask
}

// Escapes returns how many of the 36 rolls let a chequer on slot n of the
// opponent's numbering jump the points made by side.
func Escapes(side [25]uint8, n int) int {
	escapesOnce.Do(initEscapes)
	return escapeTables[0][madeMask(side, n)]
}

func escapesPastFirst(side [25]uint8, n int) int {
	escapesOnce.Do(initEscapes)
	return escapeTables[1][madeMask(side, n)]
}
