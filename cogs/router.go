package cogs

import (
	"log"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"kasumi-go/channels"
	"kasumi-go/games/blackjack"
	"kasumi-go/games/mines"
	"kasumi-go/games/onestroke"
	"kasumi-go/utils"
)

// registries receive inbound messages before command parsing so that a
// user's reply reaches their running game instead of starting a new one.
var registries = []*utils.Registry{blackjack.Registry, mines.Registry, onestroke.Registry}

// normalizeText folds full-width ASCII and ideographic spaces down to their
// half-width forms so commands typed from CJK input methods still parse.
func normalizeText(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == 0x3000:
			return ' '
		case r >= 0xFF01 && r <= 0xFF5E:
			return r - 0xFF01 + '!'
		}
		return r
	}, s)
}

// HandleMessageCreate is the discordgo MessageCreate handler: it records the
// message for passive replies, updates channel membership, routes it to any
// active game session, and otherwise parses it as a command.
func HandleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	ts := time.Now()
	if t, err := discordgo.SnowflakeTimestamp(m.ID); err == nil {
		ts = t
	}
	msg := utils.InboundMessage{
		Platform:  "discord",
		ChannelID: m.ChannelID,
		UserID:    m.Author.ID,
		MessageID: m.ID,
		Text:      normalizeText(m.Content),
		Timestamp: ts,
	}

	Passive.Record(msg.ChannelID, msg.MessageID, ts)
	if err := channels.AddMember(msg.ChannelID, msg.UserID, m.Author.AvatarURL("")); err != nil {
		log.Printf("failed to track channel member: %v", err)
	}

	for _, r := range registries {
		if r.Deliver(msg) {
			return
		}
	}

	dispatchCommand(&DiscordSender{Session: s}, msg)
}

// dispatchCommand parses the leading token and runs the matching handler.
// Game starts run on their own goroutines; everything else replies inline.
func dispatchCommand(sender utils.Sender, msg utils.InboundMessage) {
	fields := strings.Fields(strings.TrimSpace(msg.Text))
	if len(fields) == 0 {
		return
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "balance", "余额":
		handleBalance(sender, msg)
	case "daily", "签到":
		handleDaily(sender, msg)
	case "transfer", "转账":
		handleTransfer(sender, msg, args)
	case "upgrade", "摘星":
		handleUpgrade(sender, msg)
	case "rank", "排行榜":
		handleRank(sender, msg)
	case "setnick":
		handleSetNick(sender, msg, args)
	case "getnick":
		handleGetNick(sender, msg)
	case "setbalance":
		handleSetBalance(sender, msg, args)
	case "blackjack", "黑香澄":
		if !utils.EnvBool("ENABLE_BLACKJACK", true) {
			return
		}
		go blackjack.Play(sender, msg, parseBet(args))
	case "mines", "探险":
		if !utils.EnvBool("ENABLE_MINES", true) {
			return
		}
		bet, count := parseMinesArgs(args)
		go mines.Play(sender, msg, bet, count)
	case "onestroke", "一笔画":
		if !utils.EnvBool("ENABLE_ONESTROKE", true) {
			return
		}
		difficulty := ""
		if len(args) > 0 {
			difficulty = strings.ToLower(args[0])
		}
		go onestroke.Play(sender, msg, difficulty)
	case "onestroke_rank":
		handleOneStrokeRank(sender, msg, args)
	case "cck", "猜卡面", "guess_chart", "猜谱面":
		sender.Send(msg.ChannelID, "该玩法需要外部谱面服务，当前未接入。")
	case "mail", "邮箱":
		handleMail(sender, msg, args)
	case "schedulemail":
		handleScheduleMail(sender, msg, args)
	case "redenvelope", "发红包":
		handleRedEnvelope(sender, msg, args)
	case "claim", "抢红包":
		handleClaim(sender, msg, args)
	case "envelopes", "红包列表":
		handleEnvelopes(sender, msg)
	}
}
