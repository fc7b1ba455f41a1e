package cogs

import (
	"log"

	"github.com/bwmarrin/discordgo"

	"kasumi-go/channels"
)

// HandleGuildMemberAdd records a new member on the guild roster.
func HandleGuildMemberAdd(s *discordgo.Session, e *discordgo.GuildMemberAdd) {
	if e.User == nil || e.User.Bot {
		return
	}
	if err := channels.AddMember(e.GuildID, e.User.ID, e.User.AvatarURL("")); err != nil {
		log.Printf("failed to add guild member: %v", err)
	}
}

// HandleGuildMemberRemove drops a departed member from the roster.
func HandleGuildMemberRemove(s *discordgo.Session, e *discordgo.GuildMemberRemove) {
	if e.User == nil {
		return
	}
	if err := channels.RemoveMember(e.GuildID, e.User.ID); err != nil {
		log.Printf("failed to remove guild member: %v", err)
	}
}

// HandleGuildDelete drops the whole roster when the bot loses a guild.
func HandleGuildDelete(s *discordgo.Session, e *discordgo.GuildDelete) {
	if e.Unavailable {
		return
	}
	if err := channels.RemoveChannel(e.ID); err != nil {
		log.Printf("failed to remove guild roster: %v", err)
	}
}
