package main

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"
)

type AuthorCount struct {
	AuthorID string
	Count    int
}

// ChannelActivity is one channel's share of a week, authors in first-seen order.
type ChannelActivity struct {
	ChannelID string
	Total     int
	Authors   []AuthorCount
}

// CollectWeeklyActivity tallies logged messages per channel and author over
// [from, to). Channel and author order follow first appearance in the log.
func CollectWeeklyActivity(store *MessageStore, from, to time.Time) ([]ChannelActivity, error) {
	it, err := store.Query(RecordFilter{From: from, To: to})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var activity []ChannelActivity
	channelIdx := make(map[string]int)
	authorIdx := make(map[string]map[string]int)

	for {
		rec, ok := it.Next()
		if !ok {
			break
		}
		ci, seen := channelIdx[rec.ChannelID]
		if !seen {
			ci = len(activity)
			channelIdx[rec.ChannelID] = ci
			authorIdx[rec.ChannelID] = make(map[string]int)
			activity = append(activity, ChannelActivity{ChannelID: rec.ChannelID})
		}
		ch := &activity[ci]
		ch.Total++

		ai, seen := authorIdx[rec.ChannelID][rec.AuthorID]
		if !seen {
			ai = len(ch.Authors)
			authorIdx[rec.ChannelID][rec.AuthorID] = ai
			ch.Authors = append(ch.Authors, AuthorCount{AuthorID: rec.AuthorID})
		}
		ch.Authors[ai].Count++
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return activity, nil
}

// FormatWeeklyDigest renders the week's numbers as a Slack message body.
func FormatWeeklyDigest(activity []ChannelActivity, from, to time.Time, channelName, userName func(string) string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*Weekly activity digest* (%s - %s)\n",
		from.Format("Jan 2"), to.AddDate(0, 0, -1).Format("Jan 2")))

	if len(activity) == 0 {
		sb.WriteString("No messages were logged this week.")
		return sb.String()
	}
	for _, ch := range activity {
		sb.WriteString(fmt.Sprintf("\n*#%s* — %d messages\n", channelName(ch.ChannelID), ch.Total))
		for _, a := range ch.Authors {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", userName(a.AuthorID), a.Count))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// StartDigestScheduler posts a weekly activity digest to the configured
// channel on a cron schedule. The schedule is a standard 5-field cron
// expression (minute hour day-of-month month day-of-week).
// Examples: "0 9 * * 1" (Mondays 9am), "30 8 * * 5" (Fridays 8:30am).
func StartDigestScheduler(cfg Config, store *MessageStore, api *slack.Client) {
	schedule := strings.TrimSpace(cfg.DigestSchedule)
	if schedule == "" || cfg.DigestChannelID == "" {
		log.Println("Weekly digest disabled (digest_schedule or digest_channel_id not set)")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid digest_schedule '%s': %v — digest disabled", schedule, err)
		return
	}
	log.Printf("Weekly digest scheduled (cron: %s) to channel %s", schedule, cfg.DigestChannelID)

	go func() {
		for {
			now := time.Now().In(cfg.Location)
			next := sched.Next(now)
			log.Printf("Next digest at %s (in %s)", next.Format("Mon Jan 2 15:04"), next.Sub(now).Round(time.Minute))

			time.Sleep(next.Sub(now))
			postWeeklyDigest(cfg, store, api)
		}
	}()
}

func postWeeklyDigest(cfg Config, store *MessageStore, api *slack.Client) {
	from, to := LastWeekRange(time.Now().In(cfg.Location))
	activity, err := CollectWeeklyActivity(store, from, to)
	if err != nil {
		log.Printf("digest collect error: %v", err)
		return
	}

	text := FormatWeeklyDigest(activity, from, to, channelNameResolver(api), userNameResolver(api))
	if cfg.AnthropicAPIKey != "" && len(activity) > 0 {
		prose, err := GenerateActivityDigest(cfg, text)
		if err != nil {
			log.Printf("digest llm error (non-fatal): %v", err)
		} else if prose != "" {
			text = prose + "\n\n" + text
		}
	}

	if _, _, err := api.PostMessage(cfg.DigestChannelID, slack.MsgOptionText(text, false)); err != nil {
		log.Printf("Error posting digest to %s: %v", cfg.DigestChannelID, err)
		return
	}
	log.Printf("digest posted channels=%d", len(activity))
}
