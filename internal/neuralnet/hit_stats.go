package neuralnet

// shot is one way of hitting a blot: the dice faces it uses, its length and
// the intermediate landing points. When all is false either of the first
// two intermediate points suffices.
type shot struct {
	all   bool
	via   [3]int
	faces int
	pips  int
}

// shots lists the 39 ways to hit, grouped by distance.
var shots = [39]shot{
	{true, [3]int{}, 1, 1},           // 1x
	{true, [3]int{}, 1, 2},           // 2x
	{true, [3]int{1}, 2, 2},          // 11
	{true, [3]int{}, 1, 3},           // 3x
	{false, [3]int{1, 2}, 2, 3},      // 21
	{true, [3]int{1, 2}, 3, 3},       // 11
	{true, [3]int{}, 1, 4},           // 4x
	{false, [3]int{1, 3}, 2, 4},      // 31
	{true, [3]int{2}, 2, 4},          // 22
	{true, [3]int{1, 2, 3}, 4, 4},    // 11
	{true, [3]int{}, 1, 5},           // 5x
	{false, [3]int{1, 4}, 2, 5},      // 41
	{false, [3]int{2, 3}, 2, 5},      // 32
	{true, [3]int{}, 1, 6},           // 6x
	{false, [3]int{1, 5}, 2, 6},      // 51
	{false, [3]int{2, 4}, 2, 6},      // 42
	{true, [3]int{3}, 2, 6},          // 33
	{true, [3]int{2, 4}, 3, 6},       // 22
	{false, [3]int{1, 6}, 2, 7},      // 61
	{false, [3]int{2, 5}, 2, 7},      // 52
	{false, [3]int{3, 4}, 2, 7},      // 43
	{false, [3]int{2, 6}, 2, 8},      // 62
	{false, [3]int{3, 5}, 2, 8},      // 53
	{true, [3]int{4}, 2, 8},          // 44
	{true, [3]int{2, 4, 6}, 4, 8},    // 22
	{false, [3]int{3, 6}, 2, 9},      // 63
	{false, [3]int{4, 5}, 2, 9},      // 54
	{true, [3]int{3, 6}, 3, 9},       // 33
	{false, [3]int{4, 6}, 2, 10},     // 64
	{true, [3]int{5}, 2, 10},         // 55
	{false, [3]int{5, 6}, 2, 11},     // 65
	{true, [3]int{6}, 2, 12},         // 66
	{true, [3]int{4, 8}, 3, 12},      // 44
	{true, [3]int{3, 6, 9}, 4, 12},   // 33
	{true, [3]int{5, 10}, 3, 15},     // 55
	{true, [3]int{4, 8, 12}, 4, 16},  // 44
	{true, [3]int{6, 12}, 3, 18},     // 66
	{true, [3]int{5, 10, 15}, 4, 20}, // 55
	{true, [3]int{6, 12, 18}, 4, 24}, // 66
}

// shotsAt[d-1] indexes the shots that cover a distance of d pips.
var shotsAt = [24][]int{
	{0}, {1, 2}, {3, 4, 5}, {6, 7, 8, 9}, {10, 11, 12},
	{13, 14, 15, 16, 17}, {18, 19, 20}, {21, 22, 23, 24}, {25, 26, 27},
	{28, 29}, {30}, {31, 32, 33}, nil, nil, {34}, {35}, nil, {36}, nil,
	{37}, nil, nil, nil, {38},
}

// rollShots[r] lists the shots available to each of the 21 distinct rolls:
// the six doubles first, then the non-doubles 21, 31, 32, ... 65.
var rollShots = [21][]int{
	{0, 2, 5, 9},
	{1, 8, 17, 24},
	{3, 16, 27, 33},
	{6, 23, 32, 35},
	{10, 29, 34, 37},
	{13, 31, 36, 38},
	{0, 1, 4},
	{0, 3, 7},
	{1, 3, 12},
	{0, 6, 11},
	{1, 6, 15},
	{3, 6, 20},
	{0, 10, 14},
	{1, 10, 19},
	{3, 10, 22},
	{6, 10, 26},
	{0, 13, 18},
	{1, 13, 21},
	{3, 13, 25},
	{6, 13, 28},
	{10, 13, 30},
}

func isDouble(roll int) bool { return roll < 6 }

type rollHits struct {
	chequers int
	pips     int
}

func (h *rollHits) lose(pips int) {
	if pips > h.pips {
		h.pips = pips
	}
}

// hitStats returns the average pips the opponent loses to our shots, and the
// chances of hitting at least one and at least two chequers. Blots on the
// 23 and 24 points are ignored unless three home points hold chequers, and
// made home points are not broken to hit.
func hitStats(self, opp [25]uint8) (piploss, p1, p2 float32) {
	homeHeld := 0
	for i := 0; i < 6; i++ {
		if self[i] > 0 {
			homeHeld++
		}
	}
	top := 21
	if homeHeld > 2 {
		top = 23
	}

	// hitters[s] has bit j set when a chequer on slot j can play shot s.
	var hitters [len(shots)]int
	for i := top; i >= 0; i-- {
		if opp[i] != 1 {
			continue
		}
		for j := 24 - i; j < 25; j++ {
			if self[j] == 0 || (j < 6 && self[j] == 2) {
				continue
			}
			for _, s := range shotsAt[j-24+i] {
				if !shotOpen(&shots[s], opp, i) {
					continue
				}
				hitters[s] |= 1 << j
			}
		}
	}

	var rolls [21]rollHits
	switch {
	case self[24] == 0:
		hitsFromBoard(&rolls, &hitters, self, opp)
	case self[24] == 1:
		hitsWithOneOnBar(&rolls, &hitters, opp)
	default:
		for r := range rolls {
			for _, s := range rollShots[r][:2] {
				if hitters[s]&(1<<24) == 0 || shots[s].faces != 1 {
					continue
				}
				rolls[r].chequers++
				rolls[r].lose(25 - shots[s].pips)
			}
		}
	}

	np, n1, n2 := 0, 0, 0
	for r, h := range rolls {
		w := 2
		if isDouble(r) {
			w = 1
		}
		np += h.pips * w
		if h.chequers > 0 {
			n1 += w
			if h.chequers > 1 {
				n2 += w
			}
		}
	}
	return float32(np) / (12 * 36), float32(n1) / 36, float32(n2) / 36
}

// shotOpen reports whether the landing points shot s needs to hit a blot on
// opponent slot i are open.
func shotOpen(s *shot, opp [25]uint8, i int) bool {
	if !s.all {
		return opp[i-s.via[0]] <= 1 || opp[i-s.via[1]] <= 1
	}
	if s.faces == 1 {
		return true
	}
	for _, v := range s.via {
		if v == 0 {
			break
		}
		if opp[i-v] > 1 {
			return false
		}
	}
	return true
}

func highestBit(bits, from int) int {
	k := from
	for k >= 0 && bits&(1<<k) == 0 {
		k--
	}
	return k
}

func hitsFromBoard(rolls *[21]rollHits, hitters *[len(shots)]int, self, opp [25]uint8) {
	for r := range rolls {
		h := &rolls[r]
		used := -1
		for _, s := range rollShots[r] {
			bits := hitters[s]
			if bits == 0 {
				continue
			}
			sh := &shots[s]
			if sh.faces == 1 {
				k := highestBit(bits, 23)
				if k <= 0 {
					continue
				}
				// A second chequer on the same point counts again.
				if used != k || self[k] > 1 {
					h.chequers++
				}
				used = k
				h.lose(k - sh.pips + 1)
				if isDouble(r) && bits&^(1<<k) != 0 {
					h.chequers++
				}
				continue
			}

			if h.chequers == 0 {
				h.chequers = 1
			}
			k := highestBit(bits, 23)
			h.lose(k - sh.pips + 1)
			for _, v := range sh.via {
				if v == 0 {
					break
				}
				if opp[23-k+v] == 1 {
					h.chequers++
					break
				}
			}
		}
	}
}

func hitsWithOneOnBar(rolls *[21]rollHits, hitters *[len(shots)]int, opp [25]uint8) {
	for r := range rolls {
		h := &rolls[r]
		entered := false
		for j, s := range rollShots[r] {
			bits := hitters[s]
			if bits == 0 {
				continue
			}
			sh := &shots[s]
			if sh.faces != 1 {
				if bits&(1<<24) == 0 {
					continue
				}
				if h.chequers == 0 {
					h.chequers = 1
				}
				h.lose(25 - sh.pips)
				for _, v := range sh.via {
					if v == 0 {
						break
					}
					if opp[v+1] == 1 {
						h.chequers++
						break
					}
				}
				continue
			}

			for k := 24; k > 0; k-- {
				if bits&(1<<k) == 0 {
					continue
				}
				if k != 24 {
					// The other die has to bring the bar chequer in first.
					if entered || opp[shots[rollShots[r][1-j]].pips-1] > 1 {
						break
					}
					entered = true
				}
				h.chequers++
				h.lose(k - sh.pips + 1)
			}
		}
	}
}
