package onestroke

import (
	"math"
	"math/rand"
	"testing"
)

// squareGraph is the 2x2 cycle: four nodes, four edges, no odd vertices.
func squareGraph() *Graph {
	g := &Graph{Rows: 2, Cols: 2, Edges: make(map[Edge]bool), Start: Point{0, 0}}
	g.Edges[NewEdge(Point{0, 0}, Point{0, 1})] = true
	g.Edges[NewEdge(Point{0, 0}, Point{1, 0})] = true
	g.Edges[NewEdge(Point{0, 1}, Point{1, 1})] = true
	g.Edges[NewEdge(Point{1, 0}, Point{1, 1})] = true
	return g
}

// pathGraph is a straight three-node line: every edge is a bridge.
func pathGraph() *Graph {
	g := &Graph{Rows: 1, Cols: 3, Edges: make(map[Edge]bool), Start: Point{0, 0}}
	g.Edges[NewEdge(Point{0, 0}, Point{0, 1})] = true
	g.Edges[NewEdge(Point{0, 1}, Point{0, 2})] = true
	return g
}

func TestNewEdgeNormalizes(t *testing.T) {
	a, b := Point{1, 1}, Point{0, 1}
	if NewEdge(a, b) != NewEdge(b, a) {
		t.Error("edge identity depends on endpoint order")
	}
}

func TestGenerateRespectsEdgeBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for name, diff := range Difficulties {
		for i := 0; i < 20; i++ {
			g := Generate(diff, rng)
			if len(g.Edges) > diff.MaxEdges {
				t.Errorf("%s: generated %d edges, want at most %d", name, len(g.Edges), diff.MaxEdges)
			}
			if len(g.Edges) == 0 {
				t.Errorf("%s: generated an empty graph", name)
			}
		}
	}

	// The easy grid is small enough that the retry loop always reaches the
	// minimum.
	easy := Difficulties["easy"]
	for i := 0; i < 20; i++ {
		if g := Generate(easy, rng); len(g.Edges) < easy.MinEdges {
			t.Errorf("easy: generated %d edges, want at least %d", len(g.Edges), easy.MinEdges)
		}
	}
}

// A walk-generated graph always carries an Euler trail, so the trail must
// traverse every edge exactly once.
func TestEulerTrailCoversEveryEdge(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	g := Generate(Difficulties["normal"], rng)

	trail := g.eulerTrail()
	if len(trail) != len(g.Edges)+1 {
		t.Fatalf("trail has %d vertices for %d edges", len(trail), len(g.Edges))
	}

	seen := make(map[Edge]bool)
	for i := 0; i < len(trail)-1; i++ {
		e := NewEdge(trail[i], trail[i+1])
		if !g.Edges[e] {
			t.Fatalf("trail step %d uses a non-edge %v", i, e)
		}
		if seen[e] {
			t.Fatalf("trail reuses edge %v", e)
		}
		seen[e] = true
	}
}

func TestBridges(t *testing.T) {
	if got := squareGraph().bridges(); got != 0 {
		t.Errorf("cycle has %d bridges, want 0", got)
	}
	if got := pathGraph().bridges(); got != 2 {
		t.Errorf("path has %d bridges, want 2", got)
	}
}

func TestOddVertices(t *testing.T) {
	if odd := squareGraph().oddVertices(); len(odd) != 0 {
		t.Errorf("cycle has %d odd vertices, want 0", len(odd))
	}
	if odd := pathGraph().oddVertices(); len(odd) != 2 {
		t.Errorf("path has %d odd vertices, want 2", len(odd))
	}
}

func TestBaseRewardAtLeastOne(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 50; i++ {
		g := Generate(Difficulties["easy"], rng)
		if g.BaseReward() < 1 {
			t.Fatalf("BaseReward = %d, want >= 1", g.BaseReward())
		}
	}
}

func TestFinalRewardDecay(t *testing.T) {
	// Inside the grace delay: full reward
	if got := FinalReward(10, 2, 3, 7.21); got != 10 {
		t.Errorf("within delay = %d, want 10", got)
	}

	// One tau past the delay: reward * e^-1
	want := int64(math.Round(10 * math.Exp(-1)))
	if got := FinalReward(10, 3+7.21, 3, 7.21); got != want {
		t.Errorf("one tau past delay = %d, want %d", got, want)
	}

	// Non-positive tau zeroes the reward
	if got := FinalReward(10, 1, 3, 0); got != 0 {
		t.Errorf("tau 0 = %d, want 0", got)
	}
	if got := FinalReward(10, 1, 3, -1); got != 0 {
		t.Errorf("negative tau = %d, want 0", got)
	}
}

func TestTrailApply(t *testing.T) {
	trail := NewTrail(squareGraph())

	// Around the square: right, down, left, up
	res := trail.Apply("DSAW")
	if res.Status != MoveOK {
		t.Fatalf("full circuit failed at step %d: %v", res.Step, res.Status)
	}
	if !trail.Complete() {
		t.Error("circuit drawn but not complete")
	}
}

func TestTrailApplyStopsAtFirstInvalid(t *testing.T) {
	trail := NewTrail(squareGraph())

	// D is fine, second D runs off the 2x2 grid
	res := trail.Apply("DD")
	if res.Status != MoveOutOfBounds || res.Step != 2 {
		t.Errorf("Apply(DD) = %+v, want out-of-bounds at step 2", res)
	}
	// The valid prefix stays drawn
	if len(trail.Drawn) != 1 || trail.Current != (Point{0, 1}) {
		t.Errorf("prefix not kept: drawn %d, current %v", len(trail.Drawn), trail.Current)
	}
}

func TestTrailApplyRejectsRedraw(t *testing.T) {
	trail := NewTrail(squareGraph())
	trail.Apply("D")
	res := trail.Apply("A")
	if res.Status != MoveAlreadyDrawn || res.Step != 1 {
		t.Errorf("redraw = %+v, want already-drawn at step 1", res)
	}
}

func TestTrailReset(t *testing.T) {
	trail := NewTrail(squareGraph())
	trail.Apply("DS")
	trail.Reset()
	if len(trail.Drawn) != 0 || trail.Current != trail.Graph.Start {
		t.Error("Reset did not clear the drawing")
	}
}

func TestTrailApplyNoEdge(t *testing.T) {
	g := pathGraph()
	trail := NewTrail(g)
	res := trail.Apply("S")
	if res.Status != MoveOutOfBounds {
		t.Errorf("off-grid move = %v, want MoveOutOfBounds", res.Status)
	}
}
