package genetic

// mutationCursors cycles through the eligible fleets of every postcode.
// Positions persist for the whole run.
type mutationCursors struct {
	eligible [][]int
	pos      []int
}

func newMutationCursors(eligible [][]int) *mutationCursors {
	return &mutationCursors{eligible: eligible, pos: make([]int, len(eligible))}
}

func (c *mutationCursors) next(p int) int {
	list := c.eligible[p]
	f := list[c.pos[p]]
	c.pos[p] = (c.pos[p] + 1) % len(list)
	return f
}
