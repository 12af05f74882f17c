package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/xraph/jobq/dlq"
	"github.com/xraph/jobq/job"
)

// jobView renders a job with its payload inline when it is JSON.
type jobView struct {
	*job.Job
	Payload json.RawMessage `json:"payload"`
}

func viewJob(j *job.Job) jobView {
	return jobView{Job: j, Payload: inlinePayload(j.Payload)}
}

type entryView struct {
	*dlq.Entry
	Payload json.RawMessage `json:"payload"`
}

func viewEntry(e *dlq.Entry) entryView {
	return entryView{Entry: e, Payload: inlinePayload(e.Payload)}
}

func inlinePayload(p []byte) json.RawMessage {
	if json.Valid(p) {
		return p
	}
	quoted, _ := json.Marshal(string(p))
	return quoted
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJobTable(w io.Writer, jobs []*job.Job, total int64) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tQUEUE\tSTATE\tATTEMPTS\tNEXT VISIBLE\tLAST ERROR")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			j.ID, j.Queue, j.State, j.Attempts, j.MaxAttempts,
			j.NextVisibleAt.Format(time.RFC3339), truncate(j.LastError, 60))
	}
	fmt.Fprintf(tw, "\n%d of %d\n", len(jobs), total)
	return tw.Flush()
}

func writeEntryTable(w io.Writer, entries []*dlq.Entry, total int64) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tJOB\tQUEUE\tFAILED AT\tREPLAYED\tERROR")
	for _, e := range entries {
		replayed := "-"
		if e.Replayed() {
			replayed = e.ReplayJobID.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.JobID, e.Queue, e.FailedAt.Format(time.RFC3339), replayed, truncate(e.Error, 60))
	}
	fmt.Fprintf(tw, "\n%d of %d\n", len(entries), total)
	return tw.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
