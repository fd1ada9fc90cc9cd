package detect

import "sort"

// clusters groups the given flattened locations into connected components
// under 4- or 8-connectivity on a width x height grid. Each component is
// returned sorted ascending, and components are ordered by their lowest
// member, so merge tie-breaks are deterministic.
func clusters(locs []int, width, height, connectivity int) [][]int {
	member := make(map[int]bool, len(locs))
	for _, i := range locs {
		member[i] = true
	}

	sorted := append([]int(nil), locs...)
	sort.Ints(sorted)

	visited := make(map[int]bool, len(locs))
	var out [][]int
	for _, start := range sorted {
		if visited[start] {
			continue
		}
		var comp []int
		queue := []int{start}
		visited[start] = true
		for len(queue) > 0 {
			i := queue[0]
			queue = queue[1:]
			comp = append(comp, i)
			for _, n := range neighbors(i, width, height, connectivity) {
				if member[n] && !visited[n] {
					visited[n] = true
					queue = append(queue, n)
				}
			}
		}
		sort.Ints(comp)
		out = append(out, comp)
	}
	return out
}

// neighbors returns the in-bounds neighbor indices of location i.
func neighbors(i, width, height, connectivity int) []int {
	x, y := i%width, i/width
	offsets := [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}
	if connectivity == 8 {
		offsets = append(offsets, [2]int{-1, -1}, [2]int{1, -1}, [2]int{-1, 1}, [2]int{1, 1})
	}
	var out []int
	for _, off := range offsets {
		nx, ny := x+off[0], y+off[1]
		if nx < 0 || nx >= width || ny < 0 || ny >= height {
			continue
		}
		out = append(out, ny*width+nx)
	}
	return out
}
