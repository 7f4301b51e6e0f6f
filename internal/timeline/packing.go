package timeline

// interval is an inclusive range of day offsets from the window start.
type interval struct {
	start, end int
}

func (a interval) overlaps(b interval) bool {
	return !(a.end < b.start || a.start > b.end)
}

// packer assigns intervals to the first row where they overlap nothing.
// Greedy first-fit: not optimal, but stable for a stable input order.
type packer struct {
	rows    [][]interval
	maxRows int
}

func (p *packer) place(iv interval) (int, bool) {
	for i, row := range p.rows {
		if fits(row, iv) {
			p.rows[i] = append(row, iv)
			return i, true
		}
	}

	if p.maxRows > 0 && len(p.rows) >= p.maxRows {
		return 0, false
	}

	p.rows = append(p.rows, []interval{iv})
	return len(p.rows) - 1, true
}

func fits(row []interval, iv interval) bool {
	for _, existing := range row {
		if existing.overlaps(iv) {
			return false
		}
	}
	return true
}
