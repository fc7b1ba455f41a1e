package onestroke

import (
	"math"
	"math/rand"
)

// Point is a grid intersection.
type Point struct {
	R, C int
}

// Edge is an undirected unit edge between two orthogonal neighbors, stored
// with the smaller endpoint first.
type Edge struct {
	A, B Point
}

func less(a, b Point) bool {
	if a.R != b.R {
		return a.R < b.R
	}
	return a.C < b.C
}

// NewEdge normalizes endpoint order.
func NewEdge(a, b Point) Edge {
	if less(b, a) {
		a, b = b, a
	}
	return Edge{A: a, B: b}
}

// Graph is a grid graph produced by the generator.
type Graph struct {
	Rows, Cols int
	Edges      map[Edge]bool
	Start      Point
}

var directions = []Point{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

func (g *Graph) inBounds(p Point) bool {
	return p.R >= 0 && p.R < g.Rows && p.C >= 0 && p.C < g.Cols
}

// HasEdge reports whether the unit edge between a and b exists.
func (g *Graph) HasEdge(a, b Point) bool {
	return g.Edges[NewEdge(a, b)]
}

// Degree counts the edges incident to p.
func (g *Graph) Degree(p Point) int {
	deg := 0
	for _, d := range directions {
		nb := Point{p.R + d.R, p.C + d.C}
		if g.inBounds(nb) && g.HasEdge(p, nb) {
			deg++
		}
	}
	return deg
}

// Nodes returns every vertex touched by an edge.
func (g *Graph) Nodes() []Point {
	seen := make(map[Point]bool)
	var nodes []Point
	for e := range g.Edges {
		for _, p := range []Point{e.A, e.B} {
			if !seen[p] {
				seen[p] = true
				nodes = append(nodes, p)
			}
		}
	}
	return nodes
}

// frontierScore counts the unused edges incident to p during generation.
func frontierScore(g *Graph, p Point) int {
	score := 0
	for _, d := range directions {
		nb := Point{p.R + d.R, p.C + d.C}
		if g.inBounds(nb) && !g.HasEdge(p, nb) {
			score++
		}
	}
	return score
}

// Generate builds a graph by a weighted self-avoiding walk over edges: from
// the current vertex, pick an unused incident edge with each neighbor
// weighted by its remaining frontier. Retries until the minimum edge count
// is reached, up to 100 attempts.
func Generate(diff Difficulty, rng *rand.Rand) *Graph {
	var best *Graph
	for attempt := 0; attempt < 100; attempt++ {
		target := diff.MinEdges + rng.Intn(diff.MaxEdges-diff.MinEdges+1)
		g := walk(diff.Size, target, rng)
		if best == nil || len(g.Edges) > len(best.Edges) {
			best = g
		}
		if len(best.Edges) >= diff.MinEdges {
			return best
		}
	}
	return best
}

func walk(size, target int, rng *rand.Rand) *Graph {
	g := &Graph{
		Rows:  size,
		Cols:  size,
		Edges: make(map[Edge]bool),
	}
	current := Point{rng.Intn(size), rng.Intn(size)}
	g.Start = current

	for len(g.Edges) < target {
		var candidates []Point
		var weights []int
		total := 0
		for _, d := range directions {
			nb := Point{current.R + d.R, current.C + d.C}
			if !g.inBounds(nb) || g.HasEdge(current, nb) {
				continue
			}
			w := frontierScore(g, nb)
			if w < 1 {
				w = 1
			}
			candidates = append(candidates, nb)
			weights = append(weights, w)
			total += w
		}
		if len(candidates) == 0 {
			break
		}

		pick := rng.Intn(total)
		next := candidates[0]
		for i, w := range weights {
			if pick < w {
				next = candidates[i]
				break
			}
			pick -= w
		}

		g.Edges[NewEdge(current, next)] = true
		current = next
	}
	return g
}

// oddVertices returns the odd-degree vertices.
func (g *Graph) oddVertices() []Point {
	var odd []Point
	for _, p := range g.Nodes() {
		if g.Degree(p)%2 == 1 {
			odd = append(odd, p)
		}
	}
	return odd
}

// eulerTrail returns a vertex sequence traversing every edge once, starting
// at an odd vertex when one exists. The generator's walk guarantees one.
func (g *Graph) eulerTrail() []Point {
	adj := make(map[Point][]Point)
	for e := range g.Edges {
		adj[e.A] = append(adj[e.A], e.B)
		adj[e.B] = append(adj[e.B], e.A)
	}

	start := g.Start
	if odd := g.oddVertices(); len(odd) > 0 {
		start = odd[0]
	}

	used := make(map[Edge]bool)
	var trail []Point
	stack := []Point{start}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		advanced := false
		for _, nb := range adj[v] {
			e := NewEdge(v, nb)
			if used[e] {
				continue
			}
			used[e] = true
			stack = append(stack, nb)
			advanced = true
			break
		}
		if !advanced {
			trail = append(trail, v)
			stack = stack[:len(stack)-1]
		}
	}

	// Hierholzer emits the trail reversed
	for i, j := 0, len(trail)-1; i < j; i, j = i+1, j-1 {
		trail[i], trail[j] = trail[j], trail[i]
	}
	return trail
}

// branching is the inverse of the average number of open choices at each
// step along an Euler trail: forced paths score high, forks score low.
func (g *Graph) branching() float64 {
	trail := g.eulerTrail()
	if len(trail) < 2 {
		return 0
	}

	used := make(map[Edge]bool)
	totalChoices := 0
	for i := 0; i < len(trail)-1; i++ {
		v := trail[i]
		choices := 0
		for _, d := range directions {
			nb := Point{v.R + d.R, v.C + d.C}
			if g.inBounds(nb) && g.HasEdge(v, nb) && !used[NewEdge(v, nb)] {
				choices++
			}
		}
		totalChoices += choices
		used[NewEdge(v, trail[i+1])] = true
	}

	avg := float64(totalChoices) / float64(len(trail)-1)
	if avg == 0 {
		return 0
	}
	return 1 / avg
}

// bridges counts the cut edges via Tarjan low-links.
func (g *Graph) bridges() int {
	adj := make(map[Point][]Point)
	for e := range g.Edges {
		adj[e.A] = append(adj[e.A], e.B)
		adj[e.B] = append(adj[e.B], e.A)
	}

	disc := make(map[Point]int)
	low := make(map[Point]int)
	timer := 0
	count := 0

	var dfs func(v, parent Point, hasParent bool)
	dfs = func(v, parent Point, hasParent bool) {
		timer++
		disc[v] = timer
		low[v] = timer
		parentSkipped := false
		for _, nb := range adj[v] {
			if hasParent && nb == parent && !parentSkipped {
				parentSkipped = true
				continue
			}
			if _, visited := disc[nb]; visited {
				if disc[nb] < low[v] {
					low[v] = disc[nb]
				}
				continue
			}
			dfs(nb, v, true)
			if low[nb] < low[v] {
				low[v] = low[nb]
			}
			if low[nb] > disc[v] {
				count++
			}
		}
	}

	for _, p := range g.Nodes() {
		if _, visited := disc[p]; !visited {
			dfs(p, Point{}, false)
		}
	}
	return count
}

// BaseReward scores the puzzle's difficulty from its shape: size, how forced
// the trail is, cut edges, how far apart the trail endpoints sit, and how
// dense the drawing looks.
func (g *Graph) BaseReward() int64 {
	edgeCount := float64(len(g.Edges))
	if edgeCount == 0 {
		return 1
	}

	bridgeRatio := float64(g.bridges()) / edgeCount

	oddDistance := 0.0
	if odd := g.oddVertices(); len(odd) == 2 {
		manhattan := math.Abs(float64(odd[0].R-odd[1].R)) + math.Abs(float64(odd[0].C-odd[1].C))
		oddDistance = manhattan / float64(g.Rows+g.Cols-2)
	}

	nodes := g.Nodes()
	maxDeg, sumDeg := 0, 0
	for _, p := range nodes {
		deg := g.Degree(p)
		sumDeg += deg
		if deg > maxDeg {
			maxDeg = deg
		}
	}
	avgDeg := float64(sumDeg) / float64(len(nodes))
	density := float64(maxDeg)/4 + avgDeg/4

	score := edgeCount*edgeCount/300 +
		1.5*g.branching() +
		6*bridgeRatio +
		4*oddDistance +
		1*density

	reward := int64(math.Round(score))
	if reward < 1 {
		reward = 1
	}
	return reward
}

// FinalReward decays the base reward exponentially once the grace delay has
// passed. A non-positive decay constant zeroes the reward.
func FinalReward(base int64, elapsedSeconds, delay, tau float64) int64 {
	if tau <= 0 {
		return 0
	}
	over := elapsedSeconds - delay
	if over < 0 {
		over = 0
	}
	return int64(math.Round(float64(base) * math.Exp(-over/tau)))
}
