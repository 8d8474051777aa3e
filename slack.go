package main

import (
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const nonAdminMaxWeeks = 4

const (
	msgUsage       = "The first parameter must be a user or channel! Please use `/stats help` for more information."
	msgDateFormat  = "The dates must be in MM-DD-YYYY! Please use `/stats help` for more information."
	msgNoMessages  = "There were no messages found with your selected parameters!"
	msgNoTimeframe = "No messages were found during your selected timeframe."
	msgWeekCap     = "The maximum number of weeks you may see at a time is 4! Please narrow your search."

	msgChannelNotFound = "That channel was not found!"
	msgUserNotFound    = "That user was not found!"

	msgAdminTagUser = "You must be an admin to tag a user!"
	msgAdminClear   = "You must be an admin to use this command!"

	msgUploadFailed = "\nYour file could not be uploaded."
	msgUploadedDM   = "\nYour report file has been sent to you in a DM."
)

func StartSlackBot(cfg Config, store *MessageStore, api *slack.Client) error {
	client := socketmode.New(api)

	go func() {
		for evt := range client.Events {
			switch evt.Type {
			case socketmode.EventTypeSlashCommand:
				client.Ack(*evt.Request)
				cmd, ok := evt.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				log.Printf("Slash command received: %s from user=%s channel=%s", cmd.Command, cmd.UserID, cmd.ChannelID)
				go handleSlashCommand(api, store, cfg, cmd)
			case socketmode.EventTypeEventsAPI:
				client.Ack(*evt.Request)
				eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				go handleEventsAPI(store, eventsAPIEvent)
			}
		}
	}()

	log.Println("Slack bot connected via Socket Mode")
	return client.Run()
}

func handleSlashCommand(api *slack.Client, store *MessageStore, cfg Config, cmd slack.SlashCommand) {
	switch cmd.Command {
	case "/stats":
		handleStats(api, store, cfg, cmd)
	}
}

func handleEventsAPI(store *MessageStore, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		logMessageEvent(store, ev)
	}
}

// logMessageEvent appends one inbound channel message to the store. Edits,
// joins, and bot posts carry a subtype or bot id and are not logged.
func logMessageEvent(store *MessageStore, ev *slackevents.MessageEvent) {
	if ev.SubType != "" || ev.BotID != "" || ev.User == "" || ev.ClientMsgID == "" {
		return
	}
	rec := LogRecord{
		AuthorID:  ev.User,
		MessageID: ev.ClientMsgID,
		Text:      ev.Text,
		ChannelID: ev.Channel,
		Timestamp: parseSlackTimestamp(ev.TimeStamp),
	}
	if err := store.Append(rec); err != nil {
		if errors.Is(err, ErrDuplicateMessage) {
			log.Printf("message already logged id=%s channel=%s", ev.ClientMsgID, ev.Channel)
			return
		}
		log.Printf("Error logging message id=%s: %v", ev.ClientMsgID, err)
	}
}

// parseSlackTimestamp converts a Slack "1656332400.000200" timestamp to the
// nearest second.
func parseSlackTimestamp(ts string) time.Time {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Now().Truncate(time.Second)
	}
	return time.Unix(int64(math.Round(f)), 0)
}

// handleStats is the single entry point for /stats. Every path, including
// failures, produces exactly one ephemeral reply.
func handleStats(api *slack.Client, store *MessageStore, cfg Config, cmd slack.SlashCommand) {
	isAdmin := func(userID string) bool { return isAdminUser(api, cfg, userID) }
	postEphemeral(api, cmd, routeStats(api, store, cfg, cmd, isAdmin))
}

// routeStats dispatches on the first parameter. The admin check is passed in
// so permission-gated paths can be exercised without a live workspace.
func routeStats(api *slack.Client, store *MessageStore, cfg Config, cmd slack.SlashCommand, isAdmin func(string) bool) string {
	params := strings.Fields(cmd.Text)
	if len(params) == 0 {
		return selfReport(api, store, cmd)
	}

	first := params[0]
	switch {
	case strings.HasPrefix(first, "#") || strings.HasPrefix(first, "<#"):
		return channelReport(api, store, cfg, cmd, params, isAdmin)
	case strings.HasPrefix(first, "@") || strings.HasPrefix(first, "<@"):
		return userReport(api, store, cmd, params, isAdmin)
	case first == "help":
		return helpText(isAdmin(cmd.UserID))
	case first == "clear":
		return clearStore(store, cmd, isAdmin)
	default:
		return msgUsage
	}
}

// selfReport lists the caller's own messages across channels. No admin check.
func selfReport(api *slack.Client, store *MessageStore, cmd slack.SlashCommand) string {
	rep, err := BuildMessageListing(store, RecordFilter{AuthorID: cmd.UserID}, channelNameResolver(api))
	if err != nil {
		log.Printf("self report error user=%s: %v", cmd.UserID, err)
		return fmt.Sprintf("Error loading messages: %v", err)
	}
	if rep.Empty() {
		return msgNoMessages
	}
	return "Here is a list of messages you have sent\n```" + RenderTable(rep.Headers, rep.Rows) + "```"
}

// userReport lists another user's messages, optionally date-ranged. Only
// admins may query an identity other than their own.
func userReport(api *slack.Client, store *MessageStore, cmd slack.SlashCommand, params []string, isAdmin func(string) bool) string {
	if !isAdmin(cmd.UserID) {
		log.Printf("user report denied user=%s", cmd.UserID)
		return msgAdminTagUser
	}

	userID, userName, err := resolveUserID(api, params[0])
	if err != nil {
		log.Printf("user report resolve error token=%s: %v", params[0], err)
		return msgUserNotFound
	}

	filter := RecordFilter{AuthorID: userID}
	switch len(params) {
	case 1:
	case 3:
		start, err := ParseReportDate(params[1])
		if err != nil {
			return msgDateFormat
		}
		end, err := ParseReportDate(params[2])
		if err != nil {
			return msgDateFormat
		}
		filter.From = start
		filter.To = end.AddDate(0, 0, 1) // include the whole end day
	default:
		return msgUsage
	}

	rep, err := BuildMessageListing(store, filter, channelNameResolver(api))
	if err != nil {
		log.Printf("user report error target=%s: %v", userID, err)
		return fmt.Sprintf("Error loading messages: %v", err)
	}
	if rep.Empty() {
		return msgNoMessages
	}
	return fmt.Sprintf("Here is a list of messages that @%s has sent\n```", userName) +
		RenderTable(rep.Headers, rep.Rows) + "```"
}

func channelReport(api *slack.Client, store *MessageStore, cfg Config, cmd slack.SlashCommand, params []string, isAdmin func(string) bool) string {
	channelID, channelName, err := resolveChannel(api, params[0])
	if err != nil {
		log.Printf("channel resolve error token=%s: %v", params[0], err)
		return msgChannelNotFound
	}

	admin := isAdmin(cmd.UserID)
	switch len(params) {
	case 1:
		return channelHistogram(api, store, cfg, cmd, channelID, channelName, admin)
	case 3:
		return channelRanged(api, store, cfg, cmd, channelID, channelName, params[1], params[2], admin)
	default:
		return msgUsage
	}
}

// channelHistogram reports total messages per author over the channel's full
// history. Non-admins see only their own row; admins get the CSV in a DM.
func channelHistogram(api *slack.Client, store *MessageStore, cfg Config, cmd slack.SlashCommand, channelID, channelName string, admin bool) string {
	filter := RecordFilter{ChannelID: channelID}
	if !admin {
		filter.AuthorID = cmd.UserID
	}

	rep, err := BuildChannelHistogram(store, filter, userNameResolver(api))
	if err != nil {
		log.Printf("channel histogram error channel=%s: %v", channelID, err)
		return fmt.Sprintf("Error loading messages: %v", err)
	}

	if rep.Empty() {
		// The artifact is still regenerated with its header row.
		if _, err := WriteCSV(cfg.ReportOutputDir, rep.CSVHeaders, rep.CSVRows); err != nil {
			log.Printf("csv write error channel=%s: %v", channelID, err)
		}
		return msgNoMessages
	}

	table := RenderTable(rep.Headers, rep.Rows)
	if admin {
		intro := fmt.Sprintf("Here is a breakdown of messages sent in #%s\n```", channelName)
		return intro + table + "```" + deliverCSV(api, cfg, cmd, rep)
	}
	if _, err := WriteCSV(cfg.ReportOutputDir, rep.CSVHeaders, rep.CSVRows); err != nil {
		log.Printf("csv write error channel=%s: %v", channelID, err)
	}
	intro := fmt.Sprintf("Here is a breakdown of your messages sent in #%s\n```", channelName)
	return intro + table + "```"
}

// channelRanged reports week-bucketed counts. Admins see every author who
// posted in the range; non-admins see their own row and are capped at 4 weeks.
func channelRanged(api *slack.Client, store *MessageStore, cfg Config, cmd slack.SlashCommand, channelID, channelName, startTok, endTok string, admin bool) string {
	start, err := ParseReportDate(startTok)
	if err != nil {
		log.Printf("bad start date user=%s token=%s", cmd.UserID, startTok)
		return msgDateFormat
	}
	end, err := ParseReportDate(endTok)
	if err != nil {
		log.Printf("bad end date user=%s token=%s", cmd.UserID, endTok)
		return msgDateFormat
	}

	span := AlignWeeks(start, end)
	buckets := span.Buckets()
	from, to := span.QueryRange()
	intro := fmt.Sprintf("Here is a breakdown of messages sent in #%s\n```", channelName)

	if !admin {
		if span.Weeks > nonAdminMaxWeeks {
			return msgWeekCap
		}
		rep, err := BuildWeeklyReport(store, channelID, []string{cmd.UserID}, userNameResolver(api), buckets)
		if err != nil {
			log.Printf("channel ranged error channel=%s: %v", channelID, err)
			return fmt.Sprintf("Error building report: %v", err)
		}
		if _, err := WriteCSV(cfg.ReportOutputDir, rep.CSVHeaders, rep.CSVRows); err != nil {
			log.Printf("csv write error channel=%s: %v", channelID, err)
		}
		return intro + RenderTable(rep.Headers, rep.Rows) + "```"
	}

	authors, err := store.AuthorsInOrder(RecordFilter{ChannelID: channelID, From: from, To: to})
	if err != nil {
		log.Printf("channel ranged authors error channel=%s: %v", channelID, err)
		return fmt.Sprintf("Error loading messages: %v", err)
	}
	if len(authors) == 0 {
		return msgNoTimeframe
	}

	rep, err := BuildWeeklyReport(store, channelID, authors, userNameResolver(api), buckets)
	if err != nil {
		log.Printf("channel ranged error channel=%s: %v", channelID, err)
		return fmt.Sprintf("Error building report: %v", err)
	}
	return intro + RenderTable(rep.Headers, rep.Rows) + "```" + deliverCSV(api, cfg, cmd, rep)
}

// deliverCSV writes the artifact and DMs it to the caller. Delivery failure
// degrades the reply to text-only with a note; it never fails the request.
func deliverCSV(api *slack.Client, cfg Config, cmd slack.SlashCommand, rep Report) string {
	path, err := WriteCSV(cfg.ReportOutputDir, rep.CSVHeaders, rep.CSVRows)
	if err != nil {
		log.Printf("csv write error user=%s: %v", cmd.UserID, err)
		return msgUploadFailed
	}
	fi, err := os.Stat(path)
	if err != nil || fi.Size() <= 0 {
		log.Printf("csv stat error user=%s path=%s: %v", cmd.UserID, path, err)
		return msgUploadFailed
	}

	dm, _, _, err := api.OpenConversation(&slack.OpenConversationParameters{
		Users: []string{cmd.UserID},
	})
	if err != nil {
		log.Printf("Error opening DM with %s: %v", cmd.UserID, err)
		return msgUploadFailed
	}

	_, err = api.UploadFileV2(slack.UploadFileV2Parameters{
		File:           path,
		FileSize:       int(fi.Size()),
		Filename:       csvArtifactName,
		Channel:        dm.ID,
		InitialComment: "Here is the report you requested",
	})
	if err != nil {
		log.Printf("Error uploading report file: %v", err)
		return msgUploadFailed
	}
	return msgUploadedDM
}

func clearStore(store *MessageStore, cmd slack.SlashCommand, isAdmin func(string) bool) string {
	if !isAdmin(cmd.UserID) {
		log.Printf("clear denied user=%s", cmd.UserID)
		return msgAdminClear
	}
	if err := store.Clear(); err != nil {
		log.Printf("clear error user=%s: %v", cmd.UserID, err)
		return fmt.Sprintf("Error clearing database: %v", err)
	}
	log.Printf("database cleared by user=%s", cmd.UserID)
	return "Database cleared"
}

func helpText(admin bool) string {
	if admin {
		return ":wave: Need some help with `/stats`?\n" +
			">Use `/stats` to see stats for yourself, someone else, or for a channel. Some examples include:\n" +
			">• `/stats`\n" +
			">• `/stats #example`\n" +
			">• `/stats #example 06-22-2022 07-08-2022`\n" +
			">• `/stats @user`\n" +
			">• `/stats @user 06-22-2022 07-08-2022`\n" +
			">• `/stats clear`"
	}
	return ":wave: Need some help with `/stats`?\n" +
		">Use `/stats` to see stats for yourself or for a channel. Some examples include:\n" +
		">• `/stats`\n" +
		">• `/stats #example`\n" +
		">• `/stats #example 06-22-2022 07-08-2022`"
}

func postEphemeral(api *slack.Client, cmd slack.SlashCommand, text string) {
	postEphemeralTo(api, cmd.ChannelID, cmd.UserID, text)
}

func postEphemeralTo(api *slack.Client, channelID, userID, text string) {
	_, err := api.PostEphemeral(channelID, userID, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("Error posting ephemeral: %v", err)
	}
}
