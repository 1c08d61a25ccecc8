package neuralnet

// Offsets of the hand-crafted inputs within each side's block of MoreInputs.
const (
	iOff1 = iota
	iOff2
	iOff3
	iBreakContact
	iBackChequer
	iBackAnchor
	iForwardAnchor
	iPipLoss
	iP1
	iP2
	iBackEscapes
	iAContain
	iAContain2
	iContain
	iContain2
	iMobility
	iMoment2
	iEnter
	iEnter2
	iTiming
	iBackbone
	iBackGame
	iBackGame1
	iFreePip
	iBackRescapes
)

// ContactInputs writes the 250 contact net inputs. The men-off units of the
// two halves are taken from the opposite side, as the gnubg net was trained.
func ContactInputs(board Board, in []float32) {
	BaseInputs(board, in)

	b := in[NumBaseInputs:]
	menOff(board[0], b, 3)
	halfInputs(board[1], board[0], b)

	b = in[NumBaseInputs+MoreInputs:]
	menOff(board[1], b, 3)
	halfInputs(board[0], board[1], b)
}

// CrashedInputs writes the inputs of the crashed net, which spreads the
// men-off units over all fifteen chequers.
func CrashedInputs(board Board, in []float32) {
	BaseInputs(board, in)

	b := in[NumBaseInputs:]
	menOff(board[1], b, 5)
	halfInputs(board[1], board[0], b)

	b = in[NumBaseInputs+MoreInputs:]
	menOff(board[0], b, 5)
	halfInputs(board[0], board[1], b)
}

// menOff fills three units of width step with the number of chequers off.
func menOff(side [25]uint8, b []float32, step int) {
	off := 15
	for _, n := range side {
		off -= int(n)
	}
	for u := 0; u < 3; u++ {
		v := float32(off-u*step) / float32(step)
		switch {
		case v < 0:
			v = 0
		case v > 1 && u < 2:
			v = 1
		}
		b[iOff1+u] = v
	}
}

// halfInputs computes the positional features of self against opp.
func halfInputs(self, opp [25]uint8, b []float32) {
	oppBack := 24
	for oppBack >= 0 && opp[oppBack] == 0 {
		oppBack--
	}
	oppBack = 23 - oppBack

	n := 0
	for i := oppBack + 1; i < 25; i++ {
		n += (i + 1 - oppBack) * int(self[i])
	}
	b[iBreakContact] = float32(n) / (15 + 152)

	free := 0
	for i := 0; i < oppBack; i++ {
		free += (i + 1) * int(self[i])
	}
	b[iFreePip] = float32(free) / 100

	b[iTiming] = timing(self, oppBack)
	anchors(self, b)

	b[iPipLoss], b[iP1], b[iP2] = hitStats(self, opp)

	b[iBackEscapes] = float32(Escapes(self, 23-oppBack)) / 36
	b[iBackRescapes] = float32(escapesPastFirst(self, 23-oppBack)) / 36

	least, i := 36, 15
	for ; i < 24-oppBack; i++ {
		if e := Escapes(self, i); e < least {
			least = e
		}
	}
	b[iAContain] = float32(36-least) / 36
	b[iAContain2] = b[iAContain] * b[iAContain]

	if oppBack < 0 {
		least, i = 36, 15
	}
	for ; i < 24; i++ {
		if e := Escapes(self, i); e < least {
			least = e
		}
	}
	b[iContain] = float32(36-least) / 36
	b[iContain2] = b[iContain] * b[iContain]

	mob := 0
	for i := 6; i < 25; i++ {
		if self[i] > 0 {
			mob += (i - 5) * int(self[i]) * Escapes(opp, i)
		}
	}
	b[iMobility] = float32(mob) / 3600

	b[iMoment2] = moment2(self)
	b[iEnter], b[iEnter2] = barEntry(self, opp)
	b[iBackbone] = backbone(self)
	b[iBackGame], b[iBackGame1] = backGame(self)
}

func timing(self [25]uint8, oppBack int) float32 {
	t := 24 * int(self[24])
	spare := int(self[24])

	i := 23
	for ; i >= 12 && i > oppBack; i-- {
		if nc := int(self[i]); nc > 0 && nc != 2 {
			n := 1
			if nc > 2 {
				n = nc - 2
			}
			spare += n
			t += i * n
		}
	}
	for ; i >= 6; i-- {
		spare += int(self[i])
		t += i * int(self[i])
	}
	for i = 5; i >= 0; i-- {
		nc := int(self[i])
		if nc > 2 {
			t += i * (nc - 2)
			spare += nc - 2
		} else if need := 2 - nc; nc < 2 && spare >= need {
			t -= i * need
			spare -= need
		}
	}
	if t < 0 {
		t = 0
	}
	return float32(t) / 100
}

func anchors(self [25]uint8, b []float32) {
	back := 24
	for back >= 0 && self[back] == 0 {
		back--
	}
	b[iBackChequer] = float32(back) / 24

	anchor := back
	if anchor == 24 {
		anchor = 23
	}
	for anchor >= 0 && self[anchor] < 2 {
		anchor--
	}
	b[iBackAnchor] = float32(anchor) / 24

	fwd := 0
	for j := 18; j <= anchor; j++ {
		if self[j] >= 2 {
			fwd = 24 - j
			break
		}
	}
	for j := 17; fwd == 0 && j >= 12; j-- {
		if self[j] >= 2 {
			fwd = 24 - j
		}
	}
	if fwd == 0 {
		b[iForwardAnchor] = 2
	} else {
		b[iForwardAnchor] = float32(fwd) / 6
	}
}

func moment2(self [25]uint8) float32 {
	count, sum := 0, 0
	for i, nc := range self {
		count += int(nc)
		sum += i * int(nc)
	}
	mean := 0
	if count > 0 {
		mean = (sum + count - 1) / count
	}

	above, k := 0, 0
	for i := mean + 1; i < 25; i++ {
		if nc := int(self[i]); nc > 0 {
			above += nc
			k += nc * (i - mean) * (i - mean)
		}
	}
	if above > 0 {
		k = (k + above - 1) / above
	}
	return float32(k) / 400
}

func barEntry(self, opp [25]uint8) (enter, enter2 float32) {
	if self[24] > 0 {
		loss := 0
		two := self[24] > 1
		for i := 0; i < 6; i++ {
			if opp[i] > 1 {
				loss += 4 * (i + 1)
				for j := i + 1; j < 6; j++ {
					if opp[j] > 1 {
						loss += 2 * (i + j + 2)
					} else if two {
						loss += 2 * (i + 1)
					}
				}
			} else if two {
				for j := i + 1; j < 6; j++ {
					if opp[j] > 1 {
						loss += 2 * (j + 1)
					}
				}
			}
		}
		enter = float32(loss) / (36 * (49.0 / 6.0))
	}

	closed := 0
	for i := 0; i < 6; i++ {
		if opp[i] > 1 {
			closed++
		}
	}
	enter2 = float32(36-(closed-6)*(closed-6)) / 36
	return enter, enter2
}

// backbone measures how well the made points behind the rearmost one are
// spaced to support it.
func backbone(self [25]uint8) float32 {
	rear, w, tot := -1, 0, 0
	for p := 23; p > 0; p-- {
		if self[p] < 2 {
			continue
		}
		if rear == -1 {
			rear = p
			continue
		}
		c := 0
		switch d := rear - p; {
		case d <= 6:
			c = 11
		case d <= 11:
			c = 13 - d
		}
		w += c * int(self[rear])
		tot += int(self[rear])
	}
	if tot == 0 {
		return 0
	}
	return 1 - float32(w)/float32(tot*11)
}

func backGame(self [25]uint8) (backg, backg1 float32) {
	anchorsHeld := 0
	for i := 18; i < 24; i++ {
		if self[i] > 1 {
			anchorsHeld++
		}
	}
	if anchorsHeld == 0 {
		return 0, 0
	}
	tot := 0
	for i := 18; i < 25; i++ {
		tot += int(self[i])
	}
	if anchorsHeld > 1 {
		return float32(tot-3) / 4, 0
	}
	return 0, float32(tot) / 8
}
