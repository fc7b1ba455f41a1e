package cogs

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"kasumi-go/mailbox"
	"kasumi-go/utils"
)

// handleMail lists the caller's mailbox, or reads one entry (claiming its
// reward on first read) when an index is given.
func handleMail(sender utils.Sender, msg utils.InboundMessage, args []string) {
	if len(args) == 0 {
		items, err := mailbox.ListMail(msg.UserID)
		if err != nil {
			log.Printf("mail list failed: %v", err)
			reply(sender, msg.ChannelID, "查询失败，请稍后再试。")
			return
		}
		if len(items) == 0 {
			reply(sender, msg.ChannelID, "你的邮箱是空的。")
			return
		}
		var sb strings.Builder
		sb.WriteString("📮 你的邮箱\n")
		for i, it := range items {
			mark := "🆕"
			if it.IsRead {
				mark = "✅"
			}
			sb.WriteString(fmt.Sprintf("%d. %s %s", i+1, mark, it.Title))
			if it.StarShards > 0 {
				sb.WriteString(fmt.Sprintf("（附 %d 枚星之碎片）", it.StarShards))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("发 mail <序号> 阅读。")
		reply(sender, msg.ChannelID, sb.String())
		return
	}

	index, err := strconv.Atoi(args[0])
	if err != nil {
		reply(sender, msg.ChannelID, "邮件序号必须是整数。")
		return
	}
	item, rewarded, err := mailbox.ReadMail(msg.UserID, index)
	if err != nil {
		reply(sender, msg.ChannelID, "没有找到这封邮件。")
		return
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📬 %s\n%s", item.Title, item.Content))
	if rewarded {
		sb.WriteString(fmt.Sprintf("\n已领取 %d 枚星之碎片！", item.StarShards))
	}
	reply(sender, msg.ChannelID, sb.String())
}

// scheduleFlags parses `-x value...` option groups; a value runs until the
// next flag token.
func scheduleFlags(args []string) map[string]string {
	out := make(map[string]string)
	key := ""
	var val []string
	flush := func() {
		if key != "" {
			out[key] = strings.Join(val, " ")
		}
	}
	for _, tok := range args {
		if strings.HasPrefix(tok, "-") && len(tok) > 1 && !(tok[1] >= '0' && tok[1] <= '9') {
			flush()
			key = strings.TrimLeft(tok, "-")
			val = nil
			continue
		}
		val = append(val, tok)
	}
	flush()
	return out
}

// handleScheduleMail is the superuser scheduled-mail interface:
// schedulemail add -r <all|id,id> -t <title> -c <content> [-k shards]
// [-e days] -w <time> [--name name], plus list, info <name>, edit <name>
// <flags>, delete <name>.
func handleScheduleMail(sender utils.Sender, msg utils.InboundMessage, args []string) {
	if !utils.IsSuperuser(msg.UserID) {
		return
	}
	if len(args) == 0 {
		reply(sender, msg.ChannelID, "用法：schedulemail {add,list,info,edit,delete} ...")
		return
	}

	switch strings.ToLower(args[0]) {
	case "add":
		scheduleAdd(sender, msg, scheduleFlags(args[1:]))
	case "list":
		scheduleList(sender, msg)
	case "info":
		if len(args) < 2 {
			reply(sender, msg.ChannelID, "用法：schedulemail info <名称>")
			return
		}
		scheduleInfo(sender, msg, args[1])
	case "edit":
		if len(args) < 2 {
			reply(sender, msg.ChannelID, "用法：schedulemail edit <名称> <选项...>")
			return
		}
		scheduleEdit(sender, msg, args[1], scheduleFlags(args[2:]))
	case "delete":
		if len(args) < 2 {
			reply(sender, msg.ChannelID, "用法：schedulemail delete <名称>")
			return
		}
		scheduleDelete(sender, msg, args[1])
	default:
		reply(sender, msg.ChannelID, "用法：schedulemail {add,list,info,edit,delete} ...")
	}
}

func scheduleAdd(sender utils.Sender, msg utils.InboundMessage, flags map[string]string) {
	recipients := flags["r"]
	title := flags["t"]
	content := flags["c"]
	when := flags["w"]
	if recipients == "" || title == "" || when == "" {
		reply(sender, msg.ChannelID, "至少需要 -r 收件人、-t 标题和 -w 发送时间。")
		return
	}

	scheduledTime, err := mailbox.ParseScheduleTime(when, time.Now())
	if err != nil {
		reply(sender, msg.ChannelID, "时间格式应为 YYYY-MM-DD HH:MM 或 +Nm/+Nh/+Nd。")
		return
	}

	var shards int64
	if v := flags["k"]; v != "" {
		if shards, err = strconv.ParseInt(v, 10, 64); err != nil || shards < 0 {
			reply(sender, msg.ChannelID, "-k 附带碎片必须是非负整数。")
			return
		}
	}
	expireDays := 0
	if v := flags["e"]; v != "" {
		if expireDays, err = strconv.Atoi(v); err != nil || expireDays <= 0 {
			reply(sender, msg.ChannelID, "-e 有效天数必须是正整数。")
			return
		}
	}

	sm, err := mailbox.CreateScheduled(flags["name"], recipients, title, content, shards, expireDays, scheduledTime, msg.UserID)
	if errors.Is(err, mailbox.ErrScheduleExists) {
		reply(sender, msg.ChannelID, "这个名称已经被占用了。")
		return
	}
	if err != nil {
		log.Printf("schedulemail add failed: %v", err)
		reply(sender, msg.ChannelID, "创建失败，请稍后再试。")
		return
	}
	reply(sender, msg.ChannelID, fmt.Sprintf("已创建定时邮件 %s，将于 %s 发送。",
		sm.Name, time.Unix(sm.ScheduledTime, 0).Format("2006-01-02 15:04")))
}

func scheduleList(sender utils.Sender, msg utils.InboundMessage) {
	mails, err := mailbox.ListScheduled(true)
	if err != nil {
		log.Printf("schedulemail list failed: %v", err)
		reply(sender, msg.ChannelID, "查询失败，请稍后再试。")
		return
	}
	if len(mails) == 0 {
		reply(sender, msg.ChannelID, "没有定时邮件。")
		return
	}
	var sb strings.Builder
	sb.WriteString("⏰ 定时邮件\n")
	for _, sm := range mails {
		state := "待发送"
		if sm.IsSent {
			state = "已发送"
		}
		sb.WriteString(fmt.Sprintf("%s（%s）：%s，%s\n",
			sm.Name, state, sm.Title, time.Unix(sm.ScheduledTime, 0).Format("2006-01-02 15:04")))
	}
	reply(sender, msg.ChannelID, strings.TrimRight(sb.String(), "\n"))
}

func scheduleInfo(sender utils.Sender, msg utils.InboundMessage, name string) {
	sm, err := mailbox.GetScheduled(name)
	if errors.Is(err, mailbox.ErrScheduleNotFound) {
		reply(sender, msg.ChannelID, "没有找到这个定时邮件。")
		return
	}
	if err != nil {
		log.Printf("schedulemail info failed: %v", err)
		reply(sender, msg.ChannelID, "查询失败，请稍后再试。")
		return
	}
	state := "待发送"
	if sm.IsSent {
		state = "已发送于 " + time.Unix(sm.SentAt, 0).Format("2006-01-02 15:04")
	}
	reply(sender, msg.ChannelID, fmt.Sprintf(
		"名称：%s\n收件人：%s\n标题：%s\n内容：%s\n附带碎片：%d\n有效天数：%d\n发送时间：%s\n状态：%s",
		sm.Name, sm.Recipients, sm.Title, sm.Content, sm.StarShards, sm.ExpireDays,
		time.Unix(sm.ScheduledTime, 0).Format("2006-01-02 15:04"), state))
}

func scheduleEdit(sender utils.Sender, msg utils.InboundMessage, name string, flags map[string]string) {
	var upd mailbox.ScheduledUpdate
	if v, ok := flags["r"]; ok {
		upd.Recipients = &v
	}
	if v, ok := flags["t"]; ok {
		upd.Title = &v
	}
	if v, ok := flags["c"]; ok {
		upd.Content = &v
	}
	if v, ok := flags["k"]; ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			reply(sender, msg.ChannelID, "-k 附带碎片必须是非负整数。")
			return
		}
		upd.StarShards = &n
	}
	if v, ok := flags["e"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			reply(sender, msg.ChannelID, "-e 有效天数必须是正整数。")
			return
		}
		upd.ExpireDays = &n
	}
	if v, ok := flags["w"]; ok {
		t, err := mailbox.ParseScheduleTime(v, time.Now())
		if err != nil {
			reply(sender, msg.ChannelID, "时间格式应为 YYYY-MM-DD HH:MM 或 +Nm/+Nh/+Nd。")
			return
		}
		upd.ScheduledTime = &t
	}

	err := mailbox.UpdateScheduled(name, upd)
	switch {
	case errors.Is(err, mailbox.ErrScheduleNotFound):
		reply(sender, msg.ChannelID, "没有找到这个定时邮件。")
	case errors.Is(err, mailbox.ErrAlreadySent):
		reply(sender, msg.ChannelID, "这封邮件已经发送，无法修改。")
	case err != nil:
		log.Printf("schedulemail edit failed: %v", err)
		reply(sender, msg.ChannelID, "修改失败，请稍后再试。")
	default:
		reply(sender, msg.ChannelID, fmt.Sprintf("已更新定时邮件 %s。", name))
	}
}

func scheduleDelete(sender utils.Sender, msg utils.InboundMessage, name string) {
	err := mailbox.DeleteScheduled(name)
	if errors.Is(err, mailbox.ErrScheduleNotFound) {
		reply(sender, msg.ChannelID, "没有找到这个定时邮件。")
		return
	}
	if err != nil {
		log.Printf("schedulemail delete failed: %v", err)
		reply(sender, msg.ChannelID, "删除失败，请稍后再试。")
		return
	}
	reply(sender, msg.ChannelID, fmt.Sprintf("已删除定时邮件 %s。", name))
}
