package cogs

import (
	"time"

	"github.com/bwmarrin/discordgo"

	"kasumi-go/utils"
)

// Passive is the shared reply-quota correlator. Every outbound message asks
// it for a recent inbound message to reference.
var Passive = utils.NewPassiveCorrelator()

// DiscordSender adapts a discordgo session to the Sender interface games and
// handlers reply through.
type DiscordSender struct {
	Session *discordgo.Session
}

// Send posts content to a channel, attaching a reference to a recent inbound
// message when the passive correlator has one to spare.
func (d *DiscordSender) Send(channelID, content string) error {
	msg := &discordgo.MessageSend{Content: content}
	if messageID, _, ok := Passive.Acquire(channelID, time.Now()); ok {
		msg.Reference = &discordgo.MessageReference{
			MessageID: messageID,
			ChannelID: channelID,
		}
	}
	_, err := d.Session.ChannelMessageSendComplex(channelID, msg)
	return err
}
