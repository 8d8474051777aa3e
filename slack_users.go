package main

import (
	"errors"
	"log"
	"strings"

	"github.com/slack-go/slack"
)

var errChannelNotFound = errors.New("channel not found")
var errUserNotFound = errors.New("user not found")

// isAdminUser delegates the permission check to the Slack workspace: the
// config allow-list first, then the users.info admin flag.
func isAdminUser(api *slack.Client, cfg Config, userID string) bool {
	if cfg.IsAdminID(userID) {
		return true
	}
	user, err := api.GetUserInfo(userID)
	if err != nil {
		log.Printf("admin check error user=%s: %v", userID, err)
		return false
	}
	return user.IsAdmin
}

// parseChannelToken splits a channel argument into (id, name). Slack may
// escape the token as <#C123|name>; users may also type a bare #name.
func parseChannelToken(token string) (id, name string, ok bool) {
	if strings.HasPrefix(token, "<#") && strings.HasSuffix(token, ">") {
		inner := token[2 : len(token)-1]
		if idx := strings.IndexByte(inner, '|'); idx >= 0 {
			return inner[:idx], inner[idx+1:], true
		}
		return inner, "", true
	}
	if strings.HasPrefix(token, "#") {
		return "", strings.TrimPrefix(token, "#"), true
	}
	return "", "", false
}

// parseUserToken splits a user-mention argument into (id, name), accepting
// the escaped <@U123|name> and <@U123> forms and a bare @name.
func parseUserToken(token string) (id, name string, ok bool) {
	if strings.HasPrefix(token, "<@") && strings.HasSuffix(token, ">") {
		inner := token[2 : len(token)-1]
		if idx := strings.IndexByte(inner, '|'); idx >= 0 {
			return inner[:idx], inner[idx+1:], true
		}
		return inner, "", true
	}
	if strings.HasPrefix(token, "@") {
		return "", strings.TrimPrefix(token, "@"), true
	}
	return "", "", false
}

// resolveChannel turns a channel argument into (id, name), scanning the
// paginated conversations list when only a name was given.
func resolveChannel(api *slack.Client, token string) (string, string, error) {
	id, name, ok := parseChannelToken(token)
	if !ok {
		return "", "", errChannelNotFound
	}
	if id != "" {
		if name == "" {
			if info, err := api.GetConversationInfo(&slack.GetConversationInfoInput{ChannelID: id}); err == nil {
				name = info.Name
			} else {
				name = id
			}
		}
		return id, name, nil
	}

	params := &slack.GetConversationsParameters{Limit: 200, ExcludeArchived: true}
	for {
		channels, cursor, err := api.GetConversations(params)
		if err != nil {
			return "", "", err
		}
		for _, ch := range channels {
			if ch.Name == name {
				return ch.ID, ch.Name, nil
			}
		}
		if cursor == "" {
			return "", "", errChannelNotFound
		}
		params.Cursor = cursor
	}
}

// resolveUserID turns a user-mention argument into a user id, scanning the
// users list when only a name was given.
func resolveUserID(api *slack.Client, token string) (string, string, error) {
	id, name, ok := parseUserToken(token)
	if !ok {
		return "", "", errUserNotFound
	}
	if id != "" {
		if name == "" {
			if user, err := api.GetUserInfo(id); err == nil {
				name = user.Name
			} else {
				name = id
			}
		}
		return id, name, nil
	}

	users, err := api.GetUsers()
	if err != nil {
		return "", "", err
	}
	key := strings.ToLower(name)
	for _, user := range users {
		if strings.ToLower(user.Name) == key ||
			strings.ToLower(user.RealName) == key ||
			strings.ToLower(user.Profile.DisplayName) == key {
			return user.ID, user.Name, nil
		}
	}
	return "", "", errUserNotFound
}

// userNameResolver returns a per-request lookup with memoization so a report
// resolves each author at most once.
func userNameResolver(api *slack.Client) func(string) string {
	cache := make(map[string]string)
	return func(id string) string {
		if name, ok := cache[id]; ok {
			return name
		}
		name := id
		if user, err := api.GetUserInfo(id); err == nil {
			if user.Name != "" {
				name = user.Name
			} else if user.RealName != "" {
				name = user.RealName
			}
		} else {
			log.Printf("resolve user name error id=%s: %v", id, err)
		}
		cache[id] = name
		return name
	}
}

// channelNameResolver is the channel counterpart of userNameResolver.
func channelNameResolver(api *slack.Client) func(string) string {
	cache := make(map[string]string)
	return func(id string) string {
		if name, ok := cache[id]; ok {
			return name
		}
		name := id
		if info, err := api.GetConversationInfo(&slack.GetConversationInfoInput{ChannelID: id}); err == nil && info.Name != "" {
			name = info.Name
		}
		cache[id] = name
		return name
	}
}
