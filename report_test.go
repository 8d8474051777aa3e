package main

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func identityName(id string) string { return id }

func seedChannelWeek(t *testing.T, store *MessageStore) {
	t.Helper()
	// userA posts in channel1 on 2022-06-20 and 2022-06-27 (both Mondays,
	// one per aligned week).
	mustAppend(t, store, LogRecord{
		AuthorID: "userA", MessageID: "w1", ChannelID: "channel1",
		Timestamp: time.Date(2022, 6, 20, 10, 0, 0, 0, time.UTC),
	})
	mustAppend(t, store, LogRecord{
		AuthorID: "userA", MessageID: "w2", ChannelID: "channel1",
		Timestamp: time.Date(2022, 6, 27, 10, 0, 0, 0, time.UTC),
	})
}

func TestBuildWeeklyReportTwoWeekScenario(t *testing.T) {
	store := newTestStore(t)
	seedChannelWeek(t, store)

	span := AlignWeeks(mustParseDate(t, "06-20-2022"), mustParseDate(t, "06-29-2022"))
	buckets := span.Buckets()
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}

	from, to := span.QueryRange()
	authors, err := store.AuthorsInOrder(RecordFilter{ChannelID: "channel1", From: from, To: to})
	if err != nil {
		t.Fatalf("AuthorsInOrder failed: %v", err)
	}
	if len(authors) != 1 || authors[0] != "userA" {
		t.Fatalf("expected only userA, got %v", authors)
	}

	rep, err := BuildWeeklyReport(store, "channel1", authors, identityName, buckets)
	if err != nil {
		t.Fatalf("BuildWeeklyReport failed: %v", err)
	}
	if len(rep.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rep.Rows))
	}
	row := rep.Rows[0]
	if row[0] != "userA" || row[1] != "1" || row[2] != "1" {
		t.Fatalf("expected userA with counts 1,1, got %v", row)
	}

	// Bucket counts must sum to the total over the aligned range.
	total, err := store.CountMessages(RecordFilter{ChannelID: "channel1", From: from, To: to})
	if err != nil {
		t.Fatalf("CountMessages failed: %v", err)
	}
	sum := 0
	for _, b := range buckets {
		n, err := store.CountMessages(RecordFilter{AuthorID: "userA", ChannelID: "channel1", From: b.Start, To: b.End})
		if err != nil {
			t.Fatalf("bucket count failed: %v", err)
		}
		sum += n
	}
	if sum != total {
		t.Fatalf("bucket counts sum %d != range total %d", sum, total)
	}
}

func TestBuildWeeklyReportTruncatesInteractiveColumns(t *testing.T) {
	store := newTestStore(t)
	// Six messages, one per week, starting Sunday 2022-06-05.
	for i := 0; i < 6; i++ {
		mustAppend(t, store, LogRecord{
			AuthorID:  "userA",
			MessageID: "t" + string(rune('a'+i)),
			ChannelID: "channel1",
			Timestamp: time.Date(2022, 6, 5, 12, 0, 0, 0, time.UTC).AddDate(0, 0, 7*i),
		})
	}

	span := AlignWeeks(mustParseDate(t, "06-05-2022"), mustParseDate(t, "07-13-2022"))
	buckets := span.Buckets()
	if len(buckets) <= maxInlineWeeks {
		t.Fatalf("test needs more than %d buckets, got %d", maxInlineWeeks, len(buckets))
	}

	rep, err := BuildWeeklyReport(store, "channel1", []string{"userA"}, identityName, buckets)
	if err != nil {
		t.Fatalf("BuildWeeklyReport failed: %v", err)
	}

	if len(rep.Headers) != maxInlineWeeks+1 {
		t.Fatalf("interactive headers: want %d, got %d (%v)", maxInlineWeeks+1, len(rep.Headers), rep.Headers)
	}
	if len(rep.CSVHeaders) != len(buckets)+1 {
		t.Fatalf("csv headers: want %d, got %d (%v)", len(buckets)+1, len(rep.CSVHeaders), rep.CSVHeaders)
	}

	// Shared columns must be identical between the two views.
	for i, h := range rep.Headers {
		if rep.CSVHeaders[i] != h {
			t.Fatalf("header mismatch at %d: %q vs %q", i, h, rep.CSVHeaders[i])
		}
	}
	for i, cell := range rep.Rows[0] {
		if rep.CSVRows[0][i] != cell {
			t.Fatalf("cell mismatch at %d: %q vs %q", i, cell, rep.CSVRows[0][i])
		}
	}
	if len(rep.CSVRows[0]) <= len(rep.Rows[0]) {
		t.Fatalf("csv row should carry extra columns: %v vs %v", rep.CSVRows[0], rep.Rows[0])
	}
}

func TestBuildChannelHistogramFirstSeenOrder(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2022, 6, 20, 0, 0, 0, 0, time.UTC)

	mustAppend(t, store, LogRecord{AuthorID: "userZ", MessageID: "h1", ChannelID: "channel1", Timestamp: base})
	mustAppend(t, store, LogRecord{AuthorID: "userA", MessageID: "h2", ChannelID: "channel1", Timestamp: base})
	mustAppend(t, store, LogRecord{AuthorID: "userZ", MessageID: "h3", ChannelID: "channel1", Timestamp: base})
	mustAppend(t, store, LogRecord{AuthorID: "userZ", MessageID: "h4", ChannelID: "channel2", Timestamp: base})

	rep, err := BuildChannelHistogram(store, RecordFilter{ChannelID: "channel1"}, identityName)
	if err != nil {
		t.Fatalf("BuildChannelHistogram failed: %v", err)
	}
	if len(rep.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rep.Rows))
	}
	// userZ posted first despite sorting after userA alphabetically.
	if rep.Rows[0][0] != "userZ" || rep.Rows[0][1] != "2" {
		t.Fatalf("unexpected first row: %v", rep.Rows[0])
	}
	if rep.Rows[1][0] != "userA" || rep.Rows[1][1] != "1" {
		t.Fatalf("unexpected second row: %v", rep.Rows[1])
	}
}

func TestBuildChannelHistogramScopedToCaller(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2022, 6, 20, 0, 0, 0, 0, time.UTC)

	mustAppend(t, store, LogRecord{AuthorID: "userA", MessageID: "s1", ChannelID: "channel1", Timestamp: base})
	mustAppend(t, store, LogRecord{AuthorID: "userB", MessageID: "s2", ChannelID: "channel1", Timestamp: base})

	rep, err := BuildChannelHistogram(store, RecordFilter{ChannelID: "channel1", AuthorID: "userA"}, identityName)
	if err != nil {
		t.Fatalf("BuildChannelHistogram failed: %v", err)
	}
	for _, row := range rep.Rows {
		if row[0] != "userA" {
			t.Fatalf("scoped histogram leaked another user's row: %v", row)
		}
	}
	if len(rep.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rep.Rows))
	}
}

func TestBuildMessageListing(t *testing.T) {
	store := newTestStore(t)
	ts := time.Date(2022, 6, 20, 9, 15, 0, 0, time.UTC)
	mustAppend(t, store, LogRecord{AuthorID: "userA", MessageID: "l1", ChannelID: "C001", Text: "standup notes", Timestamp: ts})

	rep, err := BuildMessageListing(store, RecordFilter{AuthorID: "userA"}, func(string) string { return "general" })
	if err != nil {
		t.Fatalf("BuildMessageListing failed: %v", err)
	}
	if len(rep.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rep.Rows))
	}
	row := rep.Rows[0]
	if row[0] != "general" || row[1] != "2022-06-20 09:15:00" || row[2] != "standup notes" {
		t.Fatalf("unexpected listing row: %v", row)
	}
}

// appendDuringResolve returns a name resolver that writes a record to the
// store. Ingestion must not block while a report resolves names.
func appendDuringResolve(t *testing.T, store *MessageStore, rec LogRecord, name string) func(string) string {
	t.Helper()
	return func(string) string {
		done := make(chan error, 1)
		go func() { done <- store.Append(rec) }()
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("Append during name resolution failed: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Append blocked during name resolution; read lock still held")
		}
		return name
	}
}

func TestBuildMessageListingDoesNotBlockWrites(t *testing.T) {
	store := newTestStore(t)
	ts := time.Date(2022, 6, 20, 9, 15, 0, 0, time.UTC)
	mustAppend(t, store, LogRecord{AuthorID: "userA", MessageID: "nb1", ChannelID: "C001", Text: "first", Timestamp: ts})

	incoming := LogRecord{AuthorID: "userB", MessageID: "nb2", ChannelID: "C002", Timestamp: ts.Add(time.Minute)}
	rep, err := BuildMessageListing(store, RecordFilter{AuthorID: "userA"}, appendDuringResolve(t, store, incoming, "general"))
	if err != nil {
		t.Fatalf("BuildMessageListing failed: %v", err)
	}
	if len(rep.Rows) != 1 || rep.Rows[0][0] != "general" {
		t.Fatalf("unexpected listing: %v", rep.Rows)
	}
}

func TestBuildChannelHistogramDoesNotBlockWrites(t *testing.T) {
	store := newTestStore(t)
	ts := time.Date(2022, 6, 20, 9, 15, 0, 0, time.UTC)
	mustAppend(t, store, LogRecord{AuthorID: "userA", MessageID: "nh1", ChannelID: "C001", Timestamp: ts})

	incoming := LogRecord{AuthorID: "userB", MessageID: "nh2", ChannelID: "C001", Timestamp: ts.Add(time.Minute)}
	rep, err := BuildChannelHistogram(store, RecordFilter{ChannelID: "C001"}, appendDuringResolve(t, store, incoming, "alice"))
	if err != nil {
		t.Fatalf("BuildChannelHistogram failed: %v", err)
	}
	if len(rep.Rows) != 1 || rep.Rows[0][0] != "alice" || rep.Rows[0][1] != "1" {
		t.Fatalf("unexpected histogram: %v", rep.Rows)
	}
}

func TestRenderTable(t *testing.T) {
	headers := []string{"Name", "2022-06-19", "2022-06-26"}
	rows := [][]string{
		{"userA", "1", "1"},
		{"someone-longer", "10", "0"},
	}

	out := RenderTable(headers, rows)
	lines := strings.Split(out, "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "Name") {
		t.Fatalf("header row must start with Name: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "----") {
		t.Fatalf("expected dashed rule, got %q", lines[1])
	}
	if !strings.Contains(lines[3], "someone-longer") {
		t.Fatalf("row order not preserved: %q", lines[3])
	}

	// Deterministic for the same input.
	if again := RenderTable(headers, rows); again != out {
		t.Fatalf("render is not deterministic:\n%s\n---\n%s", out, again)
	}
}

func TestWriteCSVFullColumnsAndEmptyHeader(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteCSV(dir, []string{"Name", "2022-06-19", "2022-06-26"}, [][]string{{"userA", "1", "1"}})
	if err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	if filepath.Base(path) != csvArtifactName {
		t.Fatalf("unexpected artifact name: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 || len(records[0]) != 3 || records[1][0] != "userA" {
		t.Fatalf("unexpected csv contents: %v", records)
	}

	// Zero rows still writes the header line.
	path, err = WriteCSV(dir, []string{"Name", "Count"}, nil)
	if err != nil {
		t.Fatalf("WriteCSV empty failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read empty csv: %v", err)
	}
	if strings.TrimSpace(string(data)) != "Name,Count" {
		t.Fatalf("expected header-only csv, got %q", string(data))
	}
}
