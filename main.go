package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"

	"kasumi-go/cogs"
	"kasumi-go/envelope"
	"kasumi-go/games/blackjack"
	"kasumi-go/games/mines"
	"kasumi-go/games/onestroke"
	"kasumi-go/mailbox"
	"kasumi-go/utils"
)

var botStatus = "starting"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	go startHealthServer()

	if err := utils.SetupDatabase(); err != nil {
		log.Printf("Database setup failed: %v", err)
		log.Println("Continuing with in-memory stores")
	} else {
		log.Println("Database connected successfully")
		defer utils.CloseDatabase()
	}

	utils.InitializeCache(5 * time.Minute)
	defer utils.CloseCache()

	if err := utils.InitializeRedis(); err != nil {
		log.Printf("Redis unavailable, caching disabled: %v", err)
	} else {
		defer utils.CloseRedis()
	}

	cogs.Passive.StartSweeper()
	defer cogs.Passive.Close()
	envelope.StartExpirySweeper()
	defer envelope.StopExpirySweeper()
	mailbox.StartCleanupLoop()
	defer mailbox.StopCleanupLoop()
	mailbox.StartDispatcher()
	defer mailbox.StopDispatcher()

	token := os.Getenv("DISCORD_TOKEN")
	if token == "" {
		log.Println("DISCORD_TOKEN not set - bot will not connect")
		botStatus = "no_token"
		waitForSignal()
		return
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		log.Fatalf("Failed to create Discord session: %v", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent

	session.AddHandler(onReady)
	session.AddHandler(cogs.HandleMessageCreate)
	session.AddHandler(cogs.HandleGuildMemberAdd)
	session.AddHandler(cogs.HandleGuildMemberRemove)
	session.AddHandler(cogs.HandleGuildDelete)

	if err := session.Open(); err != nil {
		log.Fatalf("Failed to open Discord connection: %v", err)
	}
	defer session.Close()

	log.Println("Bot is now running. Press CTRL+C to exit.")
	botStatus = "running"

	waitForSignal()

	log.Println("Gracefully shutting down...")
	botStatus = "shutting_down"

	blackjack.Shutdown()
	mines.Shutdown()
	onestroke.Shutdown()
}

func waitForSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-stop
}

func onReady(s *discordgo.Session, event *discordgo.Ready) {
	log.Printf("Logged in as %s (ID: %s)", event.User.Username, event.User.ID)
	botStatus = "online"
}

func startHealthServer() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "Bot Status: %s", botStatus)
	})

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"%s"}`, botStatus)
	})

	log.Printf("Health server listening on :%s", port)
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Printf("Health server error: %v", err)
	}
}
