package main

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// The interactive reply shows at most this many week columns; the CSV
// artifact always keeps the full set.
const maxInlineWeeks = 4

const csvArtifactName = "table.csv"

// Report is a rendered query result. Rows are in first-appearance order of
// each subject within the queried record set. Headers/Rows are the truncated
// interactive view; CSVHeaders/CSVRows carry every column.
type Report struct {
	Headers    []string
	Rows       [][]string
	CSVHeaders []string
	CSVRows    [][]string
}

func (r Report) Empty() bool {
	return len(r.Rows) == 0
}

// BuildWeeklyReport counts messages per author per bucket in a channel.
// Author order is preserved as given (first-seen order from the store).
func BuildWeeklyReport(store *MessageStore, channelID string, authorIDs []string, nameFor func(string) string, buckets []WeekBucket) (Report, error) {
	rep := Report{Headers: []string{"Name"}, CSVHeaders: []string{"Name"}}
	for i, b := range buckets {
		if i < maxInlineWeeks {
			rep.Headers = append(rep.Headers, b.Label)
		}
		rep.CSVHeaders = append(rep.CSVHeaders, b.Label)
	}

	for _, id := range authorIDs {
		name := nameFor(id)
		row := []string{name}
		csvRow := []string{name}
		for i, b := range buckets {
			count, err := store.CountMessages(RecordFilter{
				AuthorID:  id,
				ChannelID: channelID,
				From:      b.Start,
				To:        b.End,
			})
			if err != nil {
				return Report{}, err
			}
			cell := strconv.Itoa(count)
			if i < maxInlineWeeks {
				row = append(row, cell)
			}
			csvRow = append(csvRow, cell)
		}
		rep.Rows = append(rep.Rows, row)
		rep.CSVRows = append(rep.CSVRows, csvRow)
	}
	return rep, nil
}

// BuildChannelHistogram totals messages per author, rows in first-seen order.
func BuildChannelHistogram(store *MessageStore, filter RecordFilter, nameFor func(string) string) (Report, error) {
	it, err := store.Query(filter)
	if err != nil {
		return Report{}, err
	}
	defer it.Close()

	counts := make(map[string]int)
	var order []string
	for {
		rec, ok := it.Next()
		if !ok {
			break
		}
		if _, seen := counts[rec.AuthorID]; !seen {
			order = append(order, rec.AuthorID)
		}
		counts[rec.AuthorID]++
	}
	if err := it.Err(); err != nil {
		return Report{}, err
	}
	// Release the store before resolving names; nameFor may hit the network
	// and must not block ingestion.
	if err := it.Close(); err != nil {
		return Report{}, err
	}

	rep := Report{Headers: []string{"Name", "Count"}, CSVHeaders: []string{"Name", "Count"}}
	for _, id := range order {
		row := []string{nameFor(id), strconv.Itoa(counts[id])}
		rep.Rows = append(rep.Rows, row)
		rep.CSVRows = append(rep.CSVRows, row)
	}
	return rep, nil
}

// BuildMessageListing lists matching messages as (Channel, Date, Message) rows.
func BuildMessageListing(store *MessageStore, filter RecordFilter, channelNameFor func(string) string) (Report, error) {
	it, err := store.Query(filter)
	if err != nil {
		return Report{}, err
	}
	defer it.Close()

	var recs []LogRecord
	for {
		rec, ok := it.Next()
		if !ok {
			break
		}
		recs = append(recs, rec)
	}
	if err := it.Err(); err != nil {
		return Report{}, err
	}
	// Release the store before resolving channel names; the resolver may hit
	// the network and must not block ingestion.
	if err := it.Close(); err != nil {
		return Report{}, err
	}

	rep := Report{
		Headers:    []string{"Channel", "Date", "Message"},
		CSVHeaders: []string{"Channel", "Date", "Message"},
	}
	for _, rec := range recs {
		row := []string{channelNameFor(rec.ChannelID), rec.Timestamp.Format("2006-01-02 15:04:05"), rec.Text}
		rep.Rows = append(rep.Rows, row)
		rep.CSVRows = append(rep.CSVRows, row)
	}
	return rep, nil
}

// RenderTable formats a monospaced table: header row, dashed rule, rows.
// Deterministic for the same input; no hidden state.
func RenderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(cell)
			if i < len(cells)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-len(cell)))
			}
		}
		b.WriteString("\n")
	}

	writeRow(headers)
	rule := make([]string, len(headers))
	for i := range headers {
		rule[i] = strings.Repeat("-", widths[i])
	}
	writeRow(rule)
	for _, row := range rows {
		writeRow(row)
	}
	return strings.TrimRight(b.String(), "\n")
}

// WriteCSV writes the artifact to dir, overwriting the previous request's
// file, and returns its path. An empty row set still writes the header.
func WriteCSV(dir string, headers []string, rows [][]string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, csvArtifactName)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	w := csv.NewWriter(f)
	if err := w.Write(headers); err != nil {
		f.Close()
		return "", err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			f.Close()
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}
