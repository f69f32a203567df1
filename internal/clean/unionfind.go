package clean

// unionFind groups row indices 0..n-1 with path compression and union by rank.
type unionFind struct {
	parent []int
	rank   []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent: make([]int, n),
		rank:   make([]int, n),
		size:   make([]int, n),
	}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

// find returns the root of the group containing i.
func (uf *unionFind) find(i int) int {
	for uf.parent[i] != i {
		uf.parent[i] = uf.parent[uf.parent[i]]
		i = uf.parent[i]
	}
	return i
}

// union merges the groups containing a and b. Returns true if they were separate.
func (uf *unionFind) union(a, b int) bool {
	rootA, rootB := uf.find(a), uf.find(b)
	if rootA == rootB {
		return false
	}
	switch {
	case uf.rank[rootA] < uf.rank[rootB]:
		rootA, rootB = rootB, rootA
	case uf.rank[rootA] == uf.rank[rootB]:
		uf.rank[rootA]++
	}
	uf.parent[rootB] = rootA
	uf.size[rootA] += uf.size[rootB]
	return true
}

// groups returns every group with more than one member. Members are in
// ascending order and groups are ordered by their first member.
func (uf *unionFind) groups() [][]int {
	byRoot := make(map[int][]int)
	var roots []int
	for i := range uf.parent {
		root := uf.find(i)
		if uf.size[root] < 2 {
			continue
		}
		if _, seen := byRoot[root]; !seen {
			roots = append(roots, root)
		}
		byRoot[root] = append(byRoot[root], i)
	}
	out := make([][]int, 0, len(roots))
	for _, r := range roots {
		out = append(out, byRoot[r])
	}
	return out
}
