package fec

// viterbi runs the add-compare-select recursion over a trellis with the given
// number of states. pred(ns, i) returns the i-th candidate predecessor of
// state ns, in ascending order, so equal metrics keep the lower predecessor.
// cost returns the branch metric of the transition ps -> ns at a step.
// Decoding starts in state 0. It ends in state end when end >= 0, otherwise
// in the best final state (ties go to the lowest state). The result is the
// state after every step and the metric of the final state.
func viterbi[M metric](states, fan, steps, end int, pred func(ns, i int) int, cost func(step, ps, ns int) M) ([]int, M) {
	metrics := make([]M, states)
	next := make([]M, states)
	reached := make([]bool, states)
	nextReached := make([]bool, states)
	reached[0] = true
	decisions := make([]uint8, steps*states)

	for step := 0; step < steps; step++ {
		for ns := 0; ns < states; ns++ {
			var best M
			have := false
			for i := 0; i < fan; i++ {
				ps := pred(ns, i)
				if !reached[ps] {
					continue
				}
				m := metrics[ps] + cost(step, ps, ns)
				if !have || m < best {
					best = m
					have = true
					decisions[step*states+ns] = uint8(i)
				}
			}
			next[ns] = best
			nextReached[ns] = have
		}
		metrics, next = next, metrics
		reached, nextReached = nextReached, reached
	}

	state := 0
	for s := 1; s < states; s++ {
		if reached[s] && (!reached[state] || metrics[s] < metrics[state]) {
			state = s
		}
	}
	if end >= 0 && reached[end] {
		state = end
	}
	final := metrics[state]

	path := make([]int, steps)
	for step := steps - 1; step >= 0; step-- {
		path[step] = state
		state = pred(state, int(decisions[step*states+state]))
	}
	return path, final
}
