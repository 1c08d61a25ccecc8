package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// formatPoint prints a 1-based point: 0 is off, 25 the bar.
func formatPoint(n int) string {
	switch n {
	case 0:
		return "off"
	case 25:
		return "bar"
	}
	return strconv.Itoa(n)
}

// FormatMove prints m in gnubg notation as played from b: moves of one
// chequer are chained ("24/14"), intermediate points are kept when they
// hit ("24/18*/14"), hits are starred and repeated moves counted
// ("13/7(2)").
func (b Board) FormatMove(m Move) string {
	n := m.Len()
	if n == 0 {
		return ""
	}

	rows := make([][2]int, n)
	for i := 0; i < n; i++ {
		rows[i] = [2]int{int(m.From[i]) + 1, int(m.To[i]) + 1}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i][0] != rows[j][0] {
			return rows[i][0] > rows[j][0]
		}
		return rows[i][1] > rows[j][1]
	})

	hit := func(p int) bool { return p > 0 && b[Opponent][24-p] > 0 }

	chains := make([][]int, n)
	for i, r := range rows {
		chains[i] = []int{r[0], r[1]}
	}
	for i := range chains {
		for j := i; j < n; j++ {
			if chains[i] == nil || chains[j] == nil || i == j {
				continue
			}
			last := len(chains[i]) - 1
			if chains[i][last] != chains[j][0] {
				continue
			}
			if hit(chains[i][last]) {
				chains[i] = append(chains[i], chains[j][1])
			} else {
				chains[i][last] = chains[j][1]
			}
			chains[j] = nil
		}
	}

	type group struct {
		pts   []int
		count int
	}
	var groups []group
	for _, c := range chains {
		if c == nil {
			continue
		}
		dup := false
		for k := range groups {
			if equalInts(groups[k].pts, c) {
				groups[k].count++
				dup = true
				break
			}
		}
		if !dup {
			groups = append(groups, group{pts: c, count: 1})
		}
	}

	var sb strings.Builder
	starred := 0
	for i, g := range groups {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(formatPoint(g.pts[0]))
		for _, p := range g.pts[1 : len(g.pts)-1] {
			sb.WriteString("/" + formatPoint(p) + "*")
			starred |= 1 << p
		}
		dest := g.pts[len(g.pts)-1]
		sb.WriteString("/" + formatPoint(dest))
		if hit(dest) && starred&(1<<dest) == 0 {
			sb.WriteByte('*')
			starred |= 1 << dest
		}
		if g.count > 1 {
			fmt.Fprintf(&sb, "(%d)", g.count)
		}
	}
	return sb.String()
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

const (
	chequersX = "     X6789ABCDEF"
	chequersO = "     O6789ABCDEF"
)

// pointChar shows the chequers on slot x of side 1 (X) or the matching
// point of side 0 (O) in the fifth row, where stacks print as counts.
func (b *Board) pointChar(x int, row int) byte {
	switch {
	case row == 4 && b[Self][x] > 0:
		return chequersX[b[Self][x]]
	case row == 4:
		return chequersO[b[Opponent][23-x]]
	case int(b[Self][x]) > row:
		return 'X'
	case int(b[Opponent][23-x]) > row:
		return 'O'
	}
	return ' '
}

// Draw renders the board as ASCII with side 1 (X) on roll, playing
// towards the bottom right; n is the number of chequers per side.
func (b Board) Draw(n int) string {
	offO, offX := n-b.ChequersCount(Opponent), n-b.ChequersCount(Self)

	var sb strings.Builder
	fmt.Fprintf(&sb, " %-15s %s: %s\n", "bgtrainer", "Position ID", b.ID())
	sb.WriteString(" +13-14-15-16-17-18------19-20-21-22-23-24-+\n")

	upper := func(row int, bar byte, offCh byte, off int) {
		sb.WriteString(" |")
		for x := 12; x < 18; x++ {
			sb.WriteString(" " + string(b.pointChar(x, row)) + " ")
		}
		sb.WriteString("| " + string(bar) + " |")
		for x := 18; x < 24; x++ {
			sb.WriteString(" " + string(b.pointChar(x, row)) + " ")
		}
		sb.WriteString("| ")
		for k := 0; k < 3; k++ {
			if off > 5*k+min(row, 4) {
				sb.WriteByte(offCh)
			} else {
				sb.WriteByte(' ')
			}
		}
		sb.WriteByte('\n')
	}
	lower := func(row int, bar byte, off int) {
		sb.WriteString(" |")
		for x := 11; x > 5; x-- {
			sb.WriteString(" " + string(b.pointChar(x, row)) + " ")
		}
		sb.WriteString("| " + string(bar) + " |")
		for x := 5; x >= 0; x-- {
			sb.WriteString(" " + string(b.pointChar(x, row)) + " ")
		}
		sb.WriteString("| ")
		for k := 0; k < 3; k++ {
			if off > 5*k+min(row, 4) {
				sb.WriteByte('X')
			} else {
				sb.WriteByte(' ')
			}
		}
		sb.WriteByte('\n')
	}

	for row := 0; row < 4; row++ {
		bar := byte(' ')
		if int(b[Opponent][Bar]) > row {
			bar = 'O'
		}
		upper(row, bar, 'O', offO)
	}
	upper(4, chequersO[b[Opponent][Bar]], 'O', offO)

	sb.WriteString("v|                  |BAR|                  |\n")

	lower(4, chequersX[b[Self][Bar]], offX)
	for row := 3; row >= 0; row-- {
		bar := byte(' ')
		if int(b[Self][Bar]) > row {
			bar = 'X'
		}
		lower(row, bar, offX)
	}
	sb.WriteString(" +12-11-10--9--8--7-------6--5--4--3--2--1-+\n")
	return sb.String()
}

func (b Board) String() string {
	return b.Draw(15)
}
