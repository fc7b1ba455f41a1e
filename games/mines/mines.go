package mines

import (
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"kasumi-go/models"
	"kasumi-go/utils"
)

// Registry enforces one active mines game per user.
var Registry = utils.NewRegistry("mines")

// Field is one 5x5 mines board.
type Field struct {
	Mines         int
	IsMine        [utils.MinesCellCount]bool
	Revealed      [utils.MinesCellCount]bool
	RevealedCount int
}

// NewField places mines on random cells.
func NewField(mines int, rng *rand.Rand) *Field {
	f := &Field{Mines: mines}
	for _, idx := range rng.Perm(utils.MinesCellCount)[:mines] {
		f.IsMine[idx] = true
	}
	return f
}

// RevealOutcome classifies one reveal.
type RevealOutcome int

const (
	RevealSafe RevealOutcome = iota
	RevealMine
	RevealAlready
	RevealComplete
)

// Reveal opens one cell. RevealComplete means this reveal opened the last
// safe cell.
func (f *Field) Reveal(idx int) RevealOutcome {
	if f.Revealed[idx] {
		return RevealAlready
	}
	f.Revealed[idx] = true
	f.RevealedCount++
	if f.IsMine[idx] {
		return RevealMine
	}
	if f.RevealedCount == utils.MinesCellCount-f.Mines {
		return RevealComplete
	}
	return RevealSafe
}

// RevealAllMines opens every mine for the final board.
func (f *Field) RevealAllMines() {
	for i, mine := range f.IsMine {
		if mine {
			f.Revealed[i] = true
		}
	}
}

// comb computes the binomial coefficient as a float.
func comb(n, k int) float64 {
	if k < 0 || k > n {
		return 0
	}
	result := 1.0
	for i := 0; i < k; i++ {
		result *= float64(n-i) / float64(i+1)
	}
	return result
}

// Multiplier returns the payout multiplier after k safe reveals with m mines:
// the inverse survival probability shaded by the house edge. With no reveals
// yet the bet comes back in full.
func Multiplier(m, k int) float64 {
	if k <= 0 {
		return 1
	}
	p := comb(utils.MinesCellCount-m, k) / comb(utils.MinesCellCount, k)
	return (1 / p) * (1 - utils.MinesHouseEdge)
}

// Payout truncates bet times multiplier to whole shards.
func Payout(bet int64, mul float64) int64 {
	return int64(float64(bet) * mul)
}

// Render draws the board. Unopened cells show their number, safe reveals a
// check, mines a bomb once shown.
func (f *Field) Render(showMines bool) string {
	var b strings.Builder
	for i := 0; i < utils.MinesCellCount; i++ {
		switch {
		case f.Revealed[i] && f.IsMine[i]:
			b.WriteString("💣")
		case f.Revealed[i]:
			b.WriteString("✅")
		case showMines && f.IsMine[i]:
			b.WriteString("💣")
		default:
			b.WriteString(fmt.Sprintf("%02d", i+1))
		}
		if (i+1)%utils.MinesGridSize == 0 {
			b.WriteString("\n")
		} else {
			b.WriteString(" ")
		}
	}
	return b.String()
}

func isCashout(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return t == "收手" || t == "结算" || t == "stop" || t == "s"
}

// Play runs one mines game; launched in its own goroutine by the command
// handler.
func Play(sender utils.Sender, msg utils.InboundMessage, bet int64, mineCount int) {
	userID := msg.UserID
	channelID := msg.ChannelID

	if mineCount == 0 {
		mineCount = utils.MinesDefault
	}
	if mineCount < utils.MinesMin || mineCount > utils.MinesMax {
		sender.Send(channelID, fmt.Sprintf("地雷数必须在 %d 到 %d 之间", utils.MinesMin, utils.MinesMax))
		return
	}

	session, err := Registry.Start(userID, channelID, bet)
	if err == utils.ErrAlreadyInGame {
		sender.Send(channelID, "你已经有一局游戏在进行中了")
		return
	}
	if err != nil {
		return
	}

	staked := false
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[mines] panic in game of %s: %v", userID, r)
			if staked {
				Refund(session)
			}
			sender.Send(channelID, "游戏发生内部错误，已退还赌注")
		}
		Registry.Finish(session)
	}()

	if bet <= 0 {
		reply, err := session.Ask(sender, "请输入赌注金额", utils.BetPromptTimeout)
		if err == utils.ErrSessionClosed {
			return
		}
		if err != nil {
			sender.Send(channelID, "超时未回复，游戏取消")
			return
		}
		parsed, perr := strconv.ParseInt(strings.TrimSpace(reply.Text), 10, 64)
		if perr != nil || parsed <= 0 {
			sender.Send(channelID, "无效的赌注金额，游戏取消")
			return
		}
		bet = parsed
		session.Bet = bet
	}

	user, err := utils.GetCachedUser(userID)
	if err != nil {
		sender.Send(channelID, "游戏发生内部错误")
		return
	}
	if user.Balance < bet {
		sender.Send(channelID, fmt.Sprintf("星之碎片不足：需要 %d，当前 %d", bet, user.Balance))
		return
	}
	if err := utils.Cost(userID, bet, "mines bet"); err != nil {
		sender.Send(channelID, "游戏发生内部错误")
		return
	}
	staked = true
	session.Bet = bet

	field := NewField(mineCount, rand.New(rand.NewSource(time.Now().UnixNano())))
	sender.Send(channelID, fmt.Sprintf("探险开始！%d 个地雷埋在 %d 格中\n发送 1-25 翻开格子，发送 收手 结算离场\n%s",
		mineCount, utils.MinesCellCount, field.Render(false)))

	for {
		reply, err := session.Wait(utils.PlayerTurnTimeout)
		if err == utils.ErrSessionClosed {
			// Shutdown refunds the stake; recording a forfeit here would
			// double-count it
			return
		}
		if err != nil {
			// Stake already forfeited at start; the row keeps the reveals made
			recordResult(userID, bet, mineCount, field.RevealedCount, models.ResultTimeout, 0)
			sender.Send(channelID, "超时未操作，游戏结束，赌注已没收")
			return
		}

		text := strings.TrimSpace(reply.Text)
		if isCashout(text) {
			mul := Multiplier(mineCount, field.RevealedCount)
			payout := Payout(bet, mul)
			if payout > 0 {
				utils.Add(userID, payout, "mines cashout")
			}
			recordResult(userID, bet, mineCount, field.RevealedCount, models.ResultCashout, payout-bet)
			sender.Send(channelID, fmt.Sprintf("收手成功！倍率 %.3f，获得 %d 星之碎片（净 %+d）", mul, payout, payout-bet))
			return
		}

		idx, perr := strconv.Atoi(text)
		if perr != nil || idx < 1 || idx > utils.MinesCellCount {
			sender.Send(channelID, "请输入 1-25 的格子编号，或发送 收手 结算")
			continue
		}

		switch field.Reveal(idx - 1) {
		case RevealAlready:
			sender.Send(channelID, "这个格子已经翻开了")
		case RevealMine:
			field.RevealAllMines()
			recordResult(userID, bet, mineCount, field.RevealedCount, models.ResultLose, -bet)
			sender.Send(channelID, fmt.Sprintf("踩到地雷了！损失 %d 星之碎片\n%s", bet, field.Render(true)))
			return
		case RevealComplete:
			mul := Multiplier(mineCount, field.RevealedCount)
			payout := Payout(bet, mul)
			utils.Add(userID, payout, "mines win")
			recordResult(userID, bet, mineCount, field.RevealedCount, models.ResultWin, payout-bet)
			sender.Send(channelID, fmt.Sprintf("全部安全格子都翻开了！倍率 %.3f，获得 %d 星之碎片（净 %+d）\n%s",
				mul, payout, payout-bet, field.Render(true)))
			return
		case RevealSafe:
			mul := Multiplier(mineCount, field.RevealedCount)
			sender.Send(channelID, fmt.Sprintf("%s当前倍率 %.3f，结算可得 %d", field.Render(false), mul, Payout(bet, mul)))
		}
	}
}

// Refund returns the session's stake, used on shutdown and on panic.
func Refund(session *utils.Session) {
	if session.Bet > 0 {
		if err := utils.Add(session.UserID, session.Bet, "mines refund"); err != nil {
			log.Printf("[mines] refund failed for %s: %v", session.UserID, err)
		}
	}
}

// Shutdown refunds every active game. Runs before process exit.
func Shutdown() {
	for _, session := range Registry.BeginShutdown() {
		Refund(session)
		session.Close()
	}
}
