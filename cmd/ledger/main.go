// spherize-ledger inspects the job ledger: list past jobs, dump one
// job's output, queue a rerun, or clear finished entries.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	_ "modernc.org/sqlite"

	"github.com/d3ud3u-ntp2/spherize/appconfig"
	"github.com/d3ud3u-ntp2/spherize/jobqueue"
)

func main() {
	var ledgerPath string
	flag.StringVar(&ledgerPath, "ledger", "", "Job ledger database path (default from config)")
	flag.Parse()

	if ledgerPath == "" {
		cfg, _, err := appconfig.Load()
		if err == nil && cfg.LedgerPath != "" {
			ledgerPath = cfg.LedgerPath
		} else {
			ledgerPath = appconfig.DefaultLedgerPath()
		}
	}

	db, err := sql.Open("sqlite", ledgerPath)
	if err != nil {
		log.Fatalf("failed to open ledger %s: %v", ledgerPath, err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("failed to open ledger %s: %v", ledgerPath, err)
	}

	q := jobqueue.NewQueueWithDB(db)

	cmd := flag.Arg(0)
	switch cmd {
	case "", "list":
		listJobs(q)
	case "show":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "usage: spherize-ledger show <job-id>")
			os.Exit(2)
		}
		showJob(q, flag.Arg(1))
	case "rerun":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "usage: spherize-ledger rerun <job-id>")
			os.Exit(2)
		}
		newID, err := q.CopyJob(resolveID(q, flag.Arg(1)))
		if err != nil {
			log.Fatalf("rerun failed: %v", err)
		}
		if err := q.SaveAllJobsToDB(); err != nil {
			log.Fatalf("failed to save ledger: %v", err)
		}
		fmt.Printf("Queued %s; run spherize -resume to execute it.\n", shortID(newID))
	case "clear":
		count, err := q.ClearNonRunningJobs()
		if err != nil {
			log.Fatalf("clear failed: %v", err)
		}
		fmt.Printf("Cleared %d job(s).\n", count)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q; use list, show, rerun, or clear\n", cmd)
		os.Exit(2)
	}
}

func listJobs(q *jobqueue.Queue) {
	jobs := q.GetJobs()
	if len(jobs) == 0 {
		fmt.Println("Ledger is empty.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOP\tSTATE\tAGE\tINPUT")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			shortID(j.ID), j.Op, j.State.String(), age(j.CreatedAt), truncate(j.Input, 48))
	}
	w.Flush()
}

func showJob(q *jobqueue.Queue, id string) {
	j := q.GetJob(resolveID(q, id))
	if j == nil {
		log.Fatalf("no job matching %q", id)
	}

	fmt.Printf("ID:        %s\n", j.ID)
	fmt.Printf("Op:        %s\n", j.Op)
	fmt.Printf("State:     %s\n", j.State.String())
	fmt.Printf("Input:     %s\n", j.Input)
	if len(j.Arguments) > 0 {
		fmt.Printf("Arguments: %v\n", j.Arguments)
	}
	if len(j.Dependencies) > 0 {
		fmt.Printf("Depends:   %v\n", j.Dependencies)
	}
	fmt.Printf("Created:   %s\n", j.CreatedAt.Format(time.RFC3339))
	if !j.CompletedAt.IsZero() {
		fmt.Printf("Completed: %s\n", j.CompletedAt.Format(time.RFC3339))
	}
	if !j.ErroredAt.IsZero() {
		fmt.Printf("Errored:   %s\n", j.ErroredAt.Format(time.RFC3339))
	}
	if len(j.Stdout) > 0 {
		fmt.Println("Output:")
		for _, line := range j.Stdout {
			fmt.Println("  " + line)
		}
	}
}

// resolveID expands an ID prefix to the full job ID when it matches
// exactly one ledger entry.
func resolveID(q *jobqueue.Queue, id string) string {
	if q.GetJob(id) != nil {
		return id
	}
	var match string
	for _, j := range q.GetJobs() {
		if len(id) > 0 && len(j.ID) >= len(id) && j.ID[:len(id)] == id {
			if match != "" {
				return id // ambiguous, let the caller fail on the raw value
			}
			match = j.ID
		}
	}
	if match != "" {
		return match
	}
	return id
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func age(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
