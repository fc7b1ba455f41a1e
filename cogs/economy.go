package cogs

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"kasumi-go/utils"
)

func reply(sender utils.Sender, channelID, content string) {
	if err := sender.Send(channelID, content); err != nil {
		log.Printf("failed to send reply: %v", err)
	}
}

func handleBalance(sender utils.Sender, msg utils.InboundMessage) {
	user, err := utils.GetUser(msg.UserID)
	if err != nil {
		log.Printf("balance lookup failed: %v", err)
		reply(sender, msg.ChannelID, "查询失败，请稍后再试。")
		return
	}
	reply(sender, msg.ChannelID, fmt.Sprintf("你有 %d 颗星星，%d 枚星之碎片。", user.Level, user.Balance))
}

func handleDaily(sender utils.Sender, msg utils.InboundMessage) {
	first, err := utils.Daily(msg.UserID, time.Now())
	if err != nil {
		log.Printf("daily check-in failed: %v", err)
		reply(sender, msg.ChannelID, "签到失败，请稍后再试。")
		return
	}
	if !first {
		reply(sender, msg.ChannelID, "今天已经签到过了，明天再来吧。")
		return
	}
	bonus := utils.DailyBonusAmount(rand.New(rand.NewSource(time.Now().UnixNano())))
	if err := utils.Add(msg.UserID, bonus, "daily bonus"); err != nil {
		log.Printf("daily credit failed: %v", err)
		reply(sender, msg.ChannelID, "签到失败，请稍后再试。")
		return
	}
	reply(sender, msg.ChannelID, fmt.Sprintf("签到成功！获得 %d 枚星之碎片。", bonus))
}

// handleTransfer accepts the nickname and amount in either order.
func handleTransfer(sender utils.Sender, msg utils.InboundMessage, args []string) {
	if len(args) != 2 {
		reply(sender, msg.ChannelID, "用法：transfer <昵称> <数量>")
		return
	}

	var nick string
	var amount int64
	if n, err := strconv.ParseInt(args[0], 10, 64); err == nil {
		amount, nick = n, args[1]
	} else if n, err := strconv.ParseInt(args[1], 10, 64); err == nil {
		amount, nick = n, args[0]
	} else {
		reply(sender, msg.ChannelID, "转账数量必须是整数。")
		return
	}
	if amount <= 0 {
		reply(sender, msg.ChannelID, "转账数量必须是正数。")
		return
	}

	toID, err := utils.LookupByNickname(nick)
	if err != nil {
		reply(sender, msg.ChannelID, fmt.Sprintf("找不到昵称为 %s 的用户。", nick))
		return
	}
	if toID == msg.UserID {
		reply(sender, msg.ChannelID, "不能给自己转账。")
		return
	}

	user, err := utils.GetUser(msg.UserID)
	if err != nil {
		log.Printf("transfer lookup failed: %v", err)
		reply(sender, msg.ChannelID, "转账失败，请稍后再试。")
		return
	}
	if user.Balance < amount {
		reply(sender, msg.ChannelID, "星之碎片不足。")
		return
	}

	if err := utils.Transfer(msg.UserID, toID, amount, "transfer"); err != nil {
		log.Printf("transfer failed: %v", err)
		reply(sender, msg.ChannelID, "转账失败，请稍后再试。")
		return
	}
	reply(sender, msg.ChannelID, fmt.Sprintf("已向 %s 转账 %d 枚星之碎片。", nick, amount))
}

func handleUpgrade(sender utils.Sender, msg utils.InboundMessage) {
	user, err := utils.GetUser(msg.UserID)
	if err != nil {
		log.Printf("upgrade lookup failed: %v", err)
		reply(sender, msg.ChannelID, "摘星失败，请稍后再试。")
		return
	}

	cost := utils.UpgradeCost(user.Level + 1)
	if user.Balance < cost {
		reply(sender, msg.ChannelID, fmt.Sprintf("摘下第 %d 颗星星需要 %d 枚星之碎片，你只有 %d 枚。", user.Level+1, cost, user.Balance))
		return
	}

	if err := utils.Cost(msg.UserID, cost, "star upgrade"); err != nil {
		log.Printf("upgrade debit failed: %v", err)
		reply(sender, msg.ChannelID, "摘星失败，请稍后再试。")
		return
	}
	if err := utils.IncreaseLevel(msg.UserID, 1); err != nil {
		log.Printf("upgrade level failed: %v", err)
		reply(sender, msg.ChannelID, "摘星失败，请稍后再试。")
		return
	}
	reply(sender, msg.ChannelID, fmt.Sprintf("花费 %d 枚星之碎片摘下了第 %d 颗星星！", cost, user.Level+1))
}

func handleRank(sender utils.Sender, msg utils.InboundMessage) {
	top, err := utils.GetTopUsers(10)
	if err != nil {
		log.Printf("rank query failed: %v", err)
		reply(sender, msg.ChannelID, "查询失败，请稍后再试。")
		return
	}

	var sb strings.Builder
	sb.WriteString("✨ 摘星排行榜 ✨\n")
	for i, u := range top {
		name := u.UserID
		if nick, err := utils.GetNickname(u.UserID); err == nil {
			name = nick
		}
		sb.WriteString(fmt.Sprintf("%d. %s：%d 颗星星，%d 枚星之碎片\n", i+1, name, u.Level, u.Balance))
	}

	if info, err := utils.GetUserRank(msg.UserID); err == nil {
		sb.WriteString(fmt.Sprintf("你当前排名第 %d", info.Rank))
		if info.DistanceToNextRank > 0 || info.DistanceToNextLevel > 0 {
			sb.WriteString(fmt.Sprintf("，距上一名还差 %d 颗星星、%d 枚星之碎片", info.DistanceToNextLevel, info.DistanceToNextRank))
		}
		sb.WriteString("。")
	}
	reply(sender, msg.ChannelID, sb.String())
}

func handleSetNick(sender utils.Sender, msg utils.InboundMessage, args []string) {
	if len(args) != 1 {
		reply(sender, msg.ChannelID, "用法：setnick <昵称>")
		return
	}
	fee, err := utils.SetNickname(msg.UserID, args[0])
	switch {
	case errors.Is(err, utils.ErrNicknameTooLong):
		reply(sender, msg.ChannelID, fmt.Sprintf("昵称最多 %d 个字符。", utils.NicknameMaxLength))
	case errors.Is(err, utils.ErrDuplicateNickname):
		reply(sender, msg.ChannelID, "这个昵称已经被使用了。")
	case errors.Is(err, utils.ErrNicknameInvalid):
		reply(sender, msg.ChannelID, "昵称不能为空或包含换行。")
	case err != nil:
		log.Printf("setnick failed: %v", err)
		reply(sender, msg.ChannelID, "设置失败，请稍后再试。")
	case fee > 0:
		reply(sender, msg.ChannelID, fmt.Sprintf("昵称已更新为 %s，花费 %d 枚星之碎片。", args[0], fee))
	default:
		reply(sender, msg.ChannelID, fmt.Sprintf("昵称已设置为 %s。", args[0]))
	}
}

func handleGetNick(sender utils.Sender, msg utils.InboundMessage) {
	nick, err := utils.GetNickname(msg.UserID)
	if errors.Is(err, utils.ErrNicknameNotSet) {
		reply(sender, msg.ChannelID, "你还没有设置昵称，用 setnick 设置一个吧。")
		return
	}
	if err != nil {
		log.Printf("getnick failed: %v", err)
		reply(sender, msg.ChannelID, "查询失败，请稍后再试。")
		return
	}
	reply(sender, msg.ChannelID, fmt.Sprintf("你的昵称是 %s。", nick))
}

// handleSetBalance is the superuser balance override.
func handleSetBalance(sender utils.Sender, msg utils.InboundMessage, args []string) {
	if !utils.IsSuperuser(msg.UserID) {
		return
	}
	if len(args) != 2 {
		reply(sender, msg.ChannelID, "用法：setbalance <用户ID> <数量>")
		return
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || amount < 0 {
		reply(sender, msg.ChannelID, "数量必须是非负整数。")
		return
	}
	if err := utils.Set(args[0], amount, "admin set by "+msg.UserID); err != nil {
		log.Printf("setbalance failed: %v", err)
		reply(sender, msg.ChannelID, "设置失败，请稍后再试。")
		return
	}
	reply(sender, msg.ChannelID, fmt.Sprintf("已将 %s 的余额设置为 %d。", args[0], amount))
}
