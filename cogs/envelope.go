package cogs

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"kasumi-go/envelope"
	"kasumi-go/utils"
)

// handleRedEnvelope creates an envelope from `<title?> <amount> <count>`;
// the trailing two integer tokens are amount and count, anything before
// them is the title.
func handleRedEnvelope(sender utils.Sender, msg utils.InboundMessage, args []string) {
	if len(args) < 2 {
		reply(sender, msg.ChannelID, "用法：redenvelope <标题?> <总额> <个数>")
		return
	}

	count, err := strconv.Atoi(args[len(args)-1])
	if err != nil {
		reply(sender, msg.ChannelID, "红包个数必须是整数。")
		return
	}
	amount, err := strconv.ParseInt(args[len(args)-2], 10, 64)
	if err != nil {
		reply(sender, msg.ChannelID, "红包总额必须是整数。")
		return
	}
	title := strings.Join(args[:len(args)-2], " ")
	if title == "" {
		title = "恭喜发财"
	}

	if count < 1 || amount < int64(count) {
		reply(sender, msg.ChannelID, "红包总额必须不小于个数，且个数至少为 1。")
		return
	}

	user, err := utils.GetUser(msg.UserID)
	if err != nil {
		log.Printf("envelope lookup failed: %v", err)
		reply(sender, msg.ChannelID, "发红包失败，请稍后再试。")
		return
	}
	if user.Balance < amount {
		reply(sender, msg.ChannelID, "星之碎片不足。")
		return
	}

	env, err := envelope.Create(msg.UserID, msg.ChannelID, title, amount, count)
	if err != nil {
		log.Printf("envelope create failed: %v", err)
		reply(sender, msg.ChannelID, "发红包失败，请稍后再试。")
		return
	}
	reply(sender, msg.ChannelID, fmt.Sprintf(
		"🧧 %s（#%d）：%d 枚星之碎片，共 %d 份，发 claim 来抢！",
		env.Title, env.ChannelIndex, env.TotalAmount, env.TotalCount))
}

func handleClaim(sender utils.Sender, msg utils.InboundMessage, args []string) {
	index := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			reply(sender, msg.ChannelID, "红包编号必须是整数。")
			return
		}
		index = n
	}

	res := envelope.ClaimFrom(msg.ChannelID, msg.UserID, index)
	switch res.Status {
	case envelope.ClaimNoActive:
		reply(sender, msg.ChannelID, "当前没有可抢的红包。")
	case envelope.ClaimNotFound:
		reply(sender, msg.ChannelID, "没有找到这个红包。")
	case envelope.ClaimExpired:
		reply(sender, msg.ChannelID, "这个红包已经过期了。")
	case envelope.ClaimEmpty:
		reply(sender, msg.ChannelID, "手慢了，红包已经被抢完了。")
	case envelope.ClaimAlready:
		reply(sender, msg.ChannelID, "你已经抢过这个红包了。")
	case envelope.ClaimSuccess:
		reply(sender, msg.ChannelID, fmt.Sprintf("🧧 你抢到了 %d 枚星之碎片！", res.Amount))
		if res.Completion != nil {
			c := res.Completion
			reply(sender, msg.ChannelID, fmt.Sprintf(
				"🎉 %s 的红包在 %s 内被抢完！手气王是 %s，抢到 %d 枚星之碎片。",
				displayName(c.CreatorID), c.Duration.Round(1e9), displayName(c.MaxClaimerID), c.MaxAmount))
		}
	default:
		reply(sender, msg.ChannelID, "抢红包失败，请稍后再试。")
	}
}

func handleEnvelopes(sender utils.Sender, msg utils.InboundMessage) {
	envs, err := envelope.ListActive(msg.ChannelID)
	if err != nil {
		log.Printf("envelope list failed: %v", err)
		reply(sender, msg.ChannelID, "查询失败，请稍后再试。")
		return
	}
	if len(envs) == 0 {
		reply(sender, msg.ChannelID, "当前没有进行中的红包。")
		return
	}

	var sb strings.Builder
	sb.WriteString("🧧 进行中的红包\n")
	for _, e := range envs {
		sb.WriteString(fmt.Sprintf("#%d %s（%s）：剩 %d 份，共 %d 枚\n",
			e.ChannelIndex, e.Title, displayName(e.CreatorID), e.RemainingCount, e.TotalAmount))
	}
	reply(sender, msg.ChannelID, strings.TrimRight(sb.String(), "\n"))
}

func displayName(userID string) string {
	if nick, err := utils.GetNickname(userID); err == nil {
		return nick
	}
	return userID
}
