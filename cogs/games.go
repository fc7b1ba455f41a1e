package cogs

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"kasumi-go/games/onestroke"
	"kasumi-go/utils"
)

// parseBet returns the first integer argument, or 0 to make the game prompt
// for a bet.
func parseBet(args []string) int64 {
	if len(args) == 0 {
		return 0
	}
	bet, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || bet <= 0 {
		return 0
	}
	return bet
}

func parseMinesArgs(args []string) (int64, int) {
	bet := parseBet(args)
	count := utils.MinesDefault
	if len(args) >= 2 {
		if n, err := strconv.Atoi(args[1]); err == nil {
			count = n
		}
	}
	return bet, count
}

func handleOneStrokeRank(sender utils.Sender, msg utils.InboundMessage, args []string) {
	difficulty := "normal"
	if len(args) > 0 {
		difficulty = strings.ToLower(args[0])
	}
	if _, ok := onestroke.Difficulties[difficulty]; !ok {
		reply(sender, msg.ChannelID, "难度只能是 easy、normal 或 hard。")
		return
	}

	entries, err := onestroke.Leaderboard(difficulty, 10)
	if err != nil {
		log.Printf("onestroke leaderboard failed: %v", err)
		reply(sender, msg.ChannelID, "查询失败，请稍后再试。")
		return
	}
	if len(entries) == 0 {
		reply(sender, msg.ChannelID, "这个难度还没有人完成过。")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🖊️ 一笔画最速榜（%s）\n", difficulty))
	for i, e := range entries {
		name := e.UserID
		if nick, err := utils.GetNickname(e.UserID); err == nil {
			name = nick
		}
		sb.WriteString(fmt.Sprintf("%d. %s：%.2f 秒（%s）\n",
			i+1, name, e.ElapsedSeconds, time.Unix(e.Timestamp, 0).Format("2006-01-02")))
	}
	reply(sender, msg.ChannelID, strings.TrimRight(sb.String(), "\n"))
}
