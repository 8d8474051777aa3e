package main

import (
	"log"
	"os"

	"github.com/slack-go/slack"
)

func main() {
	cfg := LoadConfig()

	store, err := OpenMessageStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open message store: %v", err)
	}
	defer store.Close()

	os.MkdirAll(cfg.ReportOutputDir, 0755)

	api := slack.New(
		cfg.SlackBotToken,
		slack.OptionAppLevelToken(cfg.SlackAppToken),
	)

	StartDigestScheduler(cfg, store, api)

	log.Println("Starting Stats Bot...")
	if err := StartSlackBot(cfg, store, api); err != nil {
		log.Fatalf("Slack bot error: %v", err)
	}
}
