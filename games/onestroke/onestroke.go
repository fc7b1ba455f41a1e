package onestroke

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"kasumi-go/utils"
)

// Registry enforces one active puzzle per user.
var Registry = utils.NewRegistry("onestroke")

// Difficulty fixes the grid size, the target edge range, and the reward
// decay constants.
type Difficulty struct {
	Name     string
	Size     int
	MinEdges int
	MaxEdges int
	Delay    float64
	Tau      float64
}

var Difficulties = map[string]Difficulty{
	"easy":   {Name: "easy", Size: 3, MinEdges: 8, MaxEdges: 11, Delay: 3, Tau: 7.21},
	"normal": {Name: "normal", Size: 4, MinEdges: 18, MaxEdges: 23, Delay: 6.5, Tau: 14.42},
	"hard":   {Name: "hard", Size: 5, MinEdges: 28, MaxEdges: 36, Delay: 10.5, Tau: 28.84},
}

// MoveStatus classifies one WASD step.
type MoveStatus int

const (
	MoveOK MoveStatus = iota
	MoveNoEdge
	MoveAlreadyDrawn
	MoveOutOfBounds
)

// MoveResult reports the first failing step of a move string, if any.
type MoveResult struct {
	Status MoveStatus
	Step   int // 1-based index into the move string
	Dir    byte
}

// Trail is the player's drawing state on one puzzle.
type Trail struct {
	Graph     *Graph
	Current   Point
	Drawn     map[Edge]bool
	StartedAt time.Time
}

// NewTrail starts a fresh drawing at the graph's start node.
func NewTrail(g *Graph) *Trail {
	return &Trail{
		Graph:     g,
		Current:   g.Start,
		Drawn:     make(map[Edge]bool),
		StartedAt: time.Now(),
	}
}

// Reset clears the drawing and restarts the timer.
func (t *Trail) Reset() {
	t.Current = t.Graph.Start
	t.Drawn = make(map[Edge]bool)
	t.StartedAt = time.Now()
}

// Complete reports whether every edge has been drawn.
func (t *Trail) Complete() bool {
	return len(t.Drawn) == len(t.Graph.Edges)
}

var moveDirs = map[byte]Point{
	'W': {-1, 0},
	'A': {0, -1},
	'S': {1, 0},
	'D': {0, 1},
}

// Apply runs the move string left to right and stops at the first invalid
// step, reporting which step failed and why. Valid prefixes stay drawn.
func (t *Trail) Apply(moves string) MoveResult {
	moves = strings.ToUpper(moves)
	for i := 0; i < len(moves); i++ {
		d, ok := moveDirs[moves[i]]
		if !ok {
			return MoveResult{Status: MoveNoEdge, Step: i + 1, Dir: moves[i]}
		}
		next := Point{t.Current.R + d.R, t.Current.C + d.C}
		if !t.Graph.inBounds(next) {
			return MoveResult{Status: MoveOutOfBounds, Step: i + 1, Dir: moves[i]}
		}
		if !t.Graph.HasEdge(t.Current, next) {
			return MoveResult{Status: MoveNoEdge, Step: i + 1, Dir: moves[i]}
		}
		e := NewEdge(t.Current, next)
		if t.Drawn[e] {
			return MoveResult{Status: MoveAlreadyDrawn, Step: i + 1, Dir: moves[i]}
		}
		t.Drawn[e] = true
		t.Current = next
	}
	return MoveResult{Status: MoveOK}
}

// Render draws the grid with nodes, edges, drawn edges, and the pen position.
func (t *Trail) Render() string {
	g := t.Graph
	var b strings.Builder
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			p := Point{r, c}
			switch {
			case p == t.Current:
				b.WriteString("●")
			case p == g.Start:
				b.WriteString("★")
			case g.Degree(p) > 0:
				b.WriteString("○")
			default:
				b.WriteString("　")
			}
			if c+1 < g.Cols {
				right := Point{r, c + 1}
				switch {
				case t.Drawn[NewEdge(p, right)]:
					b.WriteString("━")
				case g.HasEdge(p, right):
					b.WriteString("─")
				default:
					b.WriteString("　")
				}
			}
		}
		b.WriteString("\n")
		if r+1 < g.Rows {
			for c := 0; c < g.Cols; c++ {
				p := Point{r, c}
				down := Point{r + 1, c}
				switch {
				case t.Drawn[NewEdge(p, down)]:
					b.WriteString("┃")
				case g.HasEdge(p, down):
					b.WriteString("│")
				default:
					b.WriteString("　")
				}
				if c+1 < g.Cols {
					b.WriteString("　")
				}
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func describeMove(res MoveResult) string {
	switch res.Status {
	case MoveNoEdge:
		return fmt.Sprintf("第 %d 步 %c 失败：那里没有边", res.Step, res.Dir)
	case MoveAlreadyDrawn:
		return fmt.Sprintf("第 %d 步 %c 失败：这条边已经画过了", res.Step, res.Dir)
	case MoveOutOfBounds:
		return fmt.Sprintf("第 %d 步 %c 失败：超出边界", res.Step, res.Dir)
	}
	return ""
}

// Play runs one puzzle; launched in its own goroutine by the command handler.
func Play(sender utils.Sender, msg utils.InboundMessage, difficultyName string) {
	userID := msg.UserID
	channelID := msg.ChannelID

	if difficultyName == "" {
		difficultyName = "normal"
	}
	diff, ok := Difficulties[difficultyName]
	if !ok {
		sender.Send(channelID, "难度必须是 easy / normal / hard")
		return
	}

	session, err := Registry.Start(userID, channelID, 0)
	if err == utils.ErrAlreadyInGame {
		sender.Send(channelID, "你已经有一局游戏在进行中了")
		return
	}
	if err != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[onestroke] panic in game of %s: %v", userID, r)
			sender.Send(channelID, "游戏发生内部错误")
		}
		Registry.Finish(session)
	}()

	graph := Generate(diff, rand.New(rand.NewSource(time.Now().UnixNano())))
	trail := NewTrail(graph)
	base := graph.BaseReward()

	sender.Send(channelID, fmt.Sprintf(
		"一笔画开始（%s，%d 条边）！从 ★ 出发，用 WASD 一笔画完所有的边\nR 重新开始，Q 放弃\n%s",
		diff.Name, len(graph.Edges), trail.Render()))

	for {
		reply, err := session.Wait(utils.PlayerTurnTimeout)
		if err == utils.ErrSessionClosed {
			return
		}
		if err != nil {
			recordResult(userID, diff.Name, len(graph.Edges), 0, time.Since(trail.StartedAt).Seconds(), false)
			sender.Send(channelID, "超时未操作，游戏结束")
			return
		}

		text := strings.ToUpper(strings.TrimSpace(reply.Text))
		switch {
		case text == "Q":
			recordResult(userID, diff.Name, len(graph.Edges), 0, time.Since(trail.StartedAt).Seconds(), false)
			sender.Send(channelID, "已放弃本局")
			return
		case text == "R":
			trail.Reset()
			sender.Send(channelID, "已重置，计时重新开始\n"+trail.Render())
		case text != "" && strings.Trim(text, "WASD") == "":
			res := trail.Apply(text)
			if res.Status != MoveOK {
				sender.Send(channelID, describeMove(res)+"\n"+trail.Render())
				continue
			}
			if trail.Complete() {
				elapsed := time.Since(trail.StartedAt).Seconds()
				reward := FinalReward(base, elapsed, diff.Delay, diff.Tau)
				if reward > 0 {
					utils.Add(userID, reward, "onestroke reward")
				}
				recordResult(userID, diff.Name, len(graph.Edges), reward, elapsed, true)
				sender.Send(channelID, fmt.Sprintf("完成！用时 %.1f 秒，获得 %d 星之碎片\n%s",
					elapsed, reward, trail.Render()))
				return
			}
			sender.Send(channelID, trail.Render())
		default:
			sender.Send(channelID, "请输入 WASD 移动，R 重置，Q 放弃")
		}
	}
}

// Shutdown closes every active puzzle. There is no stake to refund.
func Shutdown() {
	for _, session := range Registry.BeginShutdown() {
		session.Close()
	}
}
