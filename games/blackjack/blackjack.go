package blackjack

import (
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"

	"kasumi-go/models"
	"kasumi-go/utils"
)

// Registry enforces one active blackjack game per user; Shoes holds the
// per-channel six-deck shoes.
var (
	Registry = utils.NewRegistry("blackjack")
	Shoes    = utils.NewShoeManager()
)

type handState struct {
	hand    *utils.Hand
	doubled bool
	busted  bool
}

func (hs *handState) effectiveBet(bet int64) int64 {
	if hs.doubled {
		return 2 * bet
	}
	return bet
}

// settleHand compares one finished player hand against the dealer and
// returns the net winnings for the hand's effective bet.
func settleHand(player *handState, dealer *utils.Hand, bet int64) int64 {
	eff := player.effectiveBet(bet)
	if player.busted {
		return -eff
	}
	dv := dealer.Value()
	pv := player.hand.Value()
	switch {
	case dv > 21:
		return eff
	case pv > dv:
		return eff
	case pv < dv:
		return -eff
	default:
		return 0
	}
}

// playDealer draws for the dealer until the stand value is reached.
func playDealer(dealer *utils.Hand, deal func() utils.Card) {
	for dealer.Value() < utils.DealerStandValue {
		dealer.AddCard(deal())
	}
}

// applyFirstGameBonus doubles positive winnings once per user per local day.
func applyFirstGameBonus(winnings int64, firstToday bool) (int64, bool) {
	if firstToday && winnings > 0 {
		return winnings * 2, true
	}
	return winnings, false
}

func surrenderLoss(bet int64) int64 {
	return (bet + 1) / 2
}

// Play runs a full blackjack game for one user. It is launched in its own
// goroutine by the command handler and drives the dialog through the
// session inbox.
func Play(sender utils.Sender, msg utils.InboundMessage, bet int64) {
	userID := msg.UserID
	channelID := msg.ChannelID

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
			log.Printf("[blackjack] panic in game of %s: %v", userID, r)
			if staked {
				Refund(session)
			}
			sender.Send(channelID, "游戏发生内部错误，已退还赌注")
		}
		Registry.Finish(session)
	}()

	// Prompt for the bet when the command carried none
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
	if err := utils.Cost(userID, bet, "blackjack bet"); err != nil {
		sender.Send(channelID, "游戏发生内部错误")
		return
	}
	staked = true
	session.Bet = bet

	firstToday, err := isFirstGameToday(userID)
	if err != nil {
		log.Printf("[blackjack] first-game probe failed for %s: %v", userID, err)
		firstToday = false
	}

	opening, reshuffled := Shoes.DealOpening(channelID, 4)
	if reshuffled {
		sender.Send(channelID, "牌靴剩余不足四分之一，已重新洗牌")
	}

	player := &handState{hand: utils.NewHand()}
	dealer := utils.NewHand()
	player.hand.AddCard(opening[0])
	dealer.AddCard(opening[1])
	player.hand.AddCard(opening[2])
	dealer.AddCard(opening[3])

	deal := func() utils.Card { return Shoes.Deal(channelID) }

	// Naturals settle immediately
	if player.hand.IsBlackjack() {
		if dealer.IsBlackjack() {
			utils.Add(userID, bet, "blackjack push")
			recordResult(userID, bet, models.ResultPush, 0, false)
			sender.Send(channelID, fmt.Sprintf("双方都是黑杰克！平局，退还赌注\n你的手牌: %s\n庄家手牌: %s", player.hand, dealer))
			return
		}
		winnings := int64(math.Floor(float64(bet) * utils.BlackjackPayout))
		winnings, bonus := applyFirstGameBonus(winnings, firstToday)
		utils.Add(userID, bet+winnings, "blackjack natural")
		recordResult(userID, bet, models.ResultBlackjack, winnings, false)
		text := fmt.Sprintf("黑杰克！赢得 %d 星之碎片\n你的手牌: %s\n庄家手牌: %s", winnings, player.hand, dealer)
		if bonus {
			text += "\n今日首局奖励已翻倍！"
		}
		sender.Send(channelID, text)
		return
	}

	// Split offer
	hands := []*handState{player}
	isSplit := false
	if player.hand.CanSplit() {
		reply, err := session.Ask(sender,
			fmt.Sprintf("你的手牌: %s\n两张牌点数相同，是否分牌？(是/否)", player.hand),
			utils.SplitOfferTimeout)
		if err == nil && isYes(reply.Text) {
			u, _ := utils.GetCachedUser(userID)
			if u == nil || u.Balance < bet {
				sender.Send(channelID, "星之碎片不足以分牌，继续单手游戏")
			} else if err := utils.Cost(userID, bet, "blackjack split bet"); err == nil {
				isSplit = true
				second := &handState{hand: utils.NewHand()}
				second.hand.AddCard(player.hand.Cards[1])
				player.hand.Cards = player.hand.Cards[:1]
				player.hand.AddCard(deal())
				second.hand.AddCard(deal())
				hands = append(hands, second)
			}
		}
	}

	// Player turns
	for idx, hs := range hands {
		label := ""
		if isSplit {
			label = fmt.Sprintf("（第 %d 手）", idx+1)
		}
		outcome := playHand(sender, session, hs, dealer, deal, bet, isSplit, label)
		switch outcome {
		case outcomeSurrender:
			loss := surrenderLoss(bet)
			refundTotal := stakeTotal(hands, bet) - loss
			if refundTotal > 0 {
				utils.Add(userID, refundTotal, "blackjack surrender")
			}
			recordResult(userID, bet, models.ResultSurrender, -loss, isSplit)
			sender.Send(channelID, fmt.Sprintf("已投降，损失 %d 星之碎片", loss))
			return
		case outcomeTimeout:
			recordResult(userID, bet, models.ResultTimeout, -stakeTotal(hands, bet), isSplit)
			sender.Send(channelID, fmt.Sprintf("超时未操作，没收赌注 %d 星之碎片", stakeTotal(hands, bet)))
			return
		case outcomeClosed:
			// Shutdown refunds the stake; recording a forfeit here would
			// double-count it
			return
		}
	}

	// Dealer turn, skipped when every hand busted
	allBusted := true
	for _, hs := range hands {
		if !hs.busted {
			allBusted = false
			break
		}
	}
	if !allBusted {
		playDealer(dealer, deal)
	}

	// Settlement
	var winnings int64
	for _, hs := range hands {
		winnings += settleHand(hs, dealer, bet)
	}
	winnings, bonus := applyFirstGameBonus(winnings, firstToday)

	// The stake is already debited: credit stake plus net winnings
	credit := stakeTotal(hands, bet) + winnings
	if credit > 0 {
		utils.Add(userID, credit, "blackjack settle")
	}

	result := aggregateResult(hands, winnings, isSplit)
	recordResult(userID, bet, result, winnings, isSplit)

	text := fmt.Sprintf("庄家手牌: %s (%d)\n", dealer, dealer.Value())
	for i, hs := range hands {
		text += fmt.Sprintf("你的手牌%d: %s (%d)\n", i+1, hs.hand, hs.hand.Value())
	}
	switch {
	case winnings > 0:
		text += fmt.Sprintf("你赢了 %d 星之碎片", winnings)
	case winnings < 0:
		text += fmt.Sprintf("你输了 %d 星之碎片", -winnings)
	default:
		text += "平局，退还赌注"
	}
	if bonus {
		text += "\n今日首局奖励已翻倍！"
	}
	if stats, err := getUserStats(userID); err == nil && stats.Games > 0 {
		text += fmt.Sprintf("\n战绩：%d 局 %d 胜，累计 %+d", stats.Games, stats.Wins, stats.NetWinnings)
	}
	sender.Send(channelID, text)
}

type playOutcome int

const (
	outcomeStand playOutcome = iota
	outcomeSurrender
	outcomeTimeout
	outcomeClosed
)

// playHand drives one hand's hit/stand/double/surrender loop.
func playHand(sender utils.Sender, session *utils.Session, hs *handState, dealer *utils.Hand, deal func() utils.Card, bet int64, isSplit bool, label string) playOutcome {
	for {
		if hs.hand.Value() == 21 {
			return outcomeStand
		}

		actions := "h=要牌 s=停牌"
		if hs.hand.Count() == 2 && !isSplit && !hs.doubled {
			actions += " d=加倍"
		}
		actions += " q=投降"
		prompt := fmt.Sprintf("%s你的手牌: %s (%d)，庄家明牌: %s\n%s",
			label, hs.hand, hs.hand.Value(), dealer.Cards[0], actions)

		reply, err := session.Ask(sender, prompt, utils.PlayerTurnTimeout)
		if err == utils.ErrSessionClosed {
			return outcomeClosed
		}
		if err != nil {
			return outcomeTimeout
		}

		switch strings.ToLower(strings.TrimSpace(reply.Text)) {
		case "h":
			hs.hand.AddCard(deal())
			if hs.hand.IsBusted() {
				hs.busted = true
				sender.Send(session.ChannelID, fmt.Sprintf("%s爆牌了: %s (%d)", label, hs.hand, hs.hand.Value()))
				return outcomeStand
			}
		case "s":
			return outcomeStand
		case "d":
			if hs.hand.Count() != 2 || isSplit || hs.doubled {
				sender.Send(session.ChannelID, "当前不能加倍")
				continue
			}
			u, _ := utils.GetCachedUser(session.UserID)
			if u == nil || u.Balance < bet {
				sender.Send(session.ChannelID, "星之碎片不足以加倍")
				continue
			}
			if err := utils.Cost(session.UserID, bet, "blackjack double bet"); err != nil {
				log.Printf("[blackjack] double bet debit failed for %s: %v", session.UserID, err)
				sender.Send(session.ChannelID, "加倍失败，请重新选择操作")
				continue
			}
			hs.doubled = true
			hs.hand.AddCard(deal())
			if hs.hand.IsBusted() {
				hs.busted = true
				sender.Send(session.ChannelID, fmt.Sprintf("%s加倍后爆牌: %s (%d)", label, hs.hand, hs.hand.Value()))
			}
			return outcomeStand
		case "q":
			return outcomeSurrender
		default:
			sender.Send(session.ChannelID, "无效的操作，请输入 h/s/d/q")
		}
	}
}

// stakeTotal is everything debited for the game so far.
func stakeTotal(hands []*handState, bet int64) int64 {
	var total int64
	for _, hs := range hands {
		total += hs.effectiveBet(bet)
	}
	return total
}

// aggregateResult maps net winnings to a stored result kind. Split games
// collapse to the net outcome.
func aggregateResult(hands []*handState, winnings int64, isSplit bool) string {
	if !isSplit && hands[0].busted {
		return models.ResultBust
	}
	switch {
	case winnings > 0:
		return models.ResultWin
	case winnings < 0:
		return models.ResultBust
	default:
		return models.ResultPush
	}
}

func isYes(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return t == "是" || t == "y" || t == "yes"
}

// Refund returns the session's stake, used on shutdown and on panic.
func Refund(session *utils.Session) {
	if session.Bet > 0 {
		if err := utils.Add(session.UserID, session.Bet, "blackjack refund"); err != nil {
			log.Printf("[blackjack] refund failed for %s: %v", session.UserID, err)
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
