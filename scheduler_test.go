package main

import (
	"strings"
	"testing"
	"time"
)

func TestCollectWeeklyActivityOrderAndTotals(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2022, 6, 20, 9, 0, 0, 0, time.UTC)

	mustAppend(t, store, LogRecord{AuthorID: "U2", MessageID: "d1", ChannelID: "CB", Timestamp: base})
	mustAppend(t, store, LogRecord{AuthorID: "U1", MessageID: "d2", ChannelID: "CA", Timestamp: base.Add(time.Hour)})
	mustAppend(t, store, LogRecord{AuthorID: "U2", MessageID: "d3", ChannelID: "CB", Timestamp: base.Add(2 * time.Hour)})
	mustAppend(t, store, LogRecord{AuthorID: "U3", MessageID: "d4", ChannelID: "CB", Timestamp: base.Add(3 * time.Hour)})
	// Outside the window.
	mustAppend(t, store, LogRecord{AuthorID: "U1", MessageID: "d5", ChannelID: "CA", Timestamp: base.AddDate(0, 0, 10)})

	activity, err := CollectWeeklyActivity(store, base.AddDate(0, 0, -1), base.AddDate(0, 0, 6))
	if err != nil {
		t.Fatalf("CollectWeeklyActivity failed: %v", err)
	}
	if len(activity) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(activity))
	}

	// CB was seen first and keeps that position.
	if activity[0].ChannelID != "CB" || activity[0].Total != 3 {
		t.Fatalf("unexpected first channel: %+v", activity[0])
	}
	if activity[1].ChannelID != "CA" || activity[1].Total != 1 {
		t.Fatalf("unexpected second channel: %+v", activity[1])
	}
	if len(activity[0].Authors) != 2 || activity[0].Authors[0].AuthorID != "U2" || activity[0].Authors[0].Count != 2 {
		t.Fatalf("unexpected author breakdown: %+v", activity[0].Authors)
	}
}

func TestFormatWeeklyDigest(t *testing.T) {
	from := time.Date(2022, 6, 19, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	name := func(id string) string { return strings.ToLower(id) }

	empty := FormatWeeklyDigest(nil, from, to, name, name)
	if !strings.Contains(empty, "No messages were logged this week.") {
		t.Fatalf("empty digest missing placeholder:\n%s", empty)
	}
	if !strings.Contains(empty, "Jun 19 - Jun 25") {
		t.Fatalf("digest header should show the inclusive week range:\n%s", empty)
	}

	activity := []ChannelActivity{
		{ChannelID: "CGEN", Total: 3, Authors: []AuthorCount{{AuthorID: "UA", Count: 2}, {AuthorID: "UB", Count: 1}}},
	}
	out := FormatWeeklyDigest(activity, from, to, name, name)
	if !strings.Contains(out, "*#cgen* — 3 messages") {
		t.Fatalf("digest missing channel line:\n%s", out)
	}
	if !strings.Contains(out, "- ua: 2") || !strings.Contains(out, "- ub: 1") {
		t.Fatalf("digest missing author lines:\n%s", out)
	}
}
