// Reverse Cuthill-McKee ordering to reduce fill-in during factorization.

package sparse

import "sort"

// ReverseCuthillMcKee computes a symmetric bandwidth-reducing ordering of the
// pattern of m. The returned permutation maps new index -> old index. The
// pattern is symmetrized first, so structurally unsymmetric matrices are
// handled (the factorization treats the pattern symmetrically anyway).
func ReverseCuthillMcKee(m *Matrix) []int {
	n := m.N
	adj := symmetrizedAdjacency(m)

	perm := make([]int, 0, n)
	visited := make([]bool, n)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	// Deterministic component traversal: components are entered from their
	// minimum-degree unvisited node.
	sort.SliceStable(order, func(a, b int) bool {
		return len(adj[order[a]]) < len(adj[order[b]])
	})

	for _, start := range order {
		if visited[start] {
			continue
		}
		// BFS, neighbors by increasing degree (Cuthill-McKee).
		visited[start] = true
		queue := []int{start}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			perm = append(perm, v)

			next := make([]int, 0, len(adj[v]))
			for _, w := range adj[v] {
				if !visited[w] {
					visited[w] = true
					next = append(next, w)
				}
			}
			sort.Slice(next, func(a, b int) bool {
				da, db := len(adj[next[a]]), len(adj[next[b]])
				if da != db {
					return da < db
				}
				return next[a] < next[b]
			})
			queue = append(queue, next...)
		}
	}

	// Reverse for RCM.
	for i, j := 0, len(perm)-1; i < j; i, j = i+1, j-1 {
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}

// symmetrizedAdjacency builds per-node neighbor lists from the union of the
// pattern and its transpose, excluding the diagonal.
func symmetrizedAdjacency(m *Matrix) [][]int {
	n := m.N
	adj := make([][]int, n)
	seen := make([]map[int]bool, n)
	for i := range seen {
		seen[i] = make(map[int]bool)
	}
	addEdge := func(i, j int) {
		if i == j || seen[i][j] {
			return
		}
		seen[i][j] = true
		adj[i] = append(adj[i], j)
	}
	for i := 0; i < n; i++ {
		for p := m.RowPtr[i]; p < m.RowPtr[i+1]; p++ {
			j := m.ColInd[p]
			addEdge(i, j)
			addEdge(j, i)
		}
	}
	for i := range adj {
		sort.Ints(adj[i])
	}
	return adj
}
