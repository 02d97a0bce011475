package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"iiifload/internal/outcome"
	"iiifload/internal/runner"
	"iiifload/internal/tui/live"
	"iiifload/internal/tui/styles"
)

// Start runs r headless, printing a progress line to w until the run ends.
func Start(ctx context.Context, r *runner.Runner, tasks []string, w io.Writer) {
	printHeader(w, r, tasks)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	// Start Monitor Loop
	target := live.Target{Duration: r.Cfg.Duration, MaxRequests: r.Cfg.MaxRequests}
	ticker := time.NewTicker(200 * time.Millisecond) // Faster updates for progress bar
	defer ticker.Stop()

	for {
		select {
		case <-r.Updates:
			// Drain updates
		case <-done:
			snap := r.Snapshot()
			fmt.Fprintf(w, "\r%s\n", progressLine(snap, target))
			PrintSummary(w, r)
			return
		case <-ticker.C:
			fmt.Fprintf(w, "\r%s", progressLine(r.Snapshot(), target))
		}
	}
}

func progressLine(snap runner.StatsSnapshot, target live.Target) string {
	rps := 0.0
	if snap.Elapsed.Seconds() > 0 {
		rps = float64(snap.Requests) / snap.Elapsed.Seconds()
	}

	head := fmt.Sprintf("%s %s", progressBar(0, 20, true), snap.Elapsed.Round(time.Second))
	if pct := target.Percent(snap); pct >= 0 {
		head = fmt.Sprintf("%s %3.0f%%", progressBar(pct, 20, false), pct*100)
	}

	return fmt.Sprintf("%s | Users: %3d | Inf: %3d | RPS: %.1f | OK: %d | Slow: %d | Very slow: %d | Fail: %d",
		head,
		snap.Users,
		snap.Inflight,
		rps,
		snap.Success,
		snap.Slow,
		snap.VerySlow,
		snap.Fail,
	)
}

func progressBar(pct float64, width int, unbounded bool) string {
	if unbounded {
		return "[" + strings.Repeat("~", width) + "]"
	}
	filled := int(pct * float64(width))
	filled = max(0, min(filled, width))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}

func printHeader(w io.Writer, r *runner.Runner, tasks []string) {
	cfg := r.Cfg
	fmt.Fprintf(w, "\n%s\n", styles.Title.Render("STARTING IIIF LOAD TEST"))
	fmt.Fprintf(w, "======================================================================\n")
	fmt.Fprintf(w, "Run ID     : %s\n", r.ID)
	fmt.Fprintf(w, "Users      : %d (spawn rate %.1f/s)\n", cfg.Users, cfg.SpawnRate)
	fmt.Fprintf(w, "Duration   : %s\n", orUnlimited(cfg.Duration > 0, cfg.Duration.String()))
	fmt.Fprintf(w, "Max reqs   : %s\n", orUnlimited(cfg.MaxRequests > 0, fmt.Sprint(cfg.MaxRequests)))
	fmt.Fprintf(w, "Rate       : %s\n", orUnlimited(cfg.Rate > 0, fmt.Sprintf("%.1f tasks/s", cfg.Rate)))
	fmt.Fprintf(w, "Timeout    : %s\n", cfg.Timeout)
	fmt.Fprintf(w, "Seed       : %d\n", r.Seed)
	fmt.Fprintf(w, "Tasks      : %s\n", strings.Join(tasks, ", "))
	fmt.Fprintf(w, "======================================================================\n\n")
}

func orUnlimited(set bool, v string) string {
	if !set {
		return "unlimited"
	}
	return v
}

// PrintSummary writes the end of run report.
func PrintSummary(w io.Writer, r *runner.Runner) {
	stats := r.Stats
	snap := r.Snapshot()
	rps := 0.0
	if snap.Elapsed.Seconds() > 0 {
		rps = float64(snap.Requests) / snap.Elapsed.Seconds()
	}

	fmt.Fprintf(w, "\n%s\n", styles.Title.Render("LOAD TEST RESULTS"))
	fmt.Fprintf(w, "======================================================================\n")
	fmt.Fprintf(w, "Total Duration : %s\n", snap.Elapsed.Round(time.Second))
	fmt.Fprintf(w, "Requests Sent  : %d\n", snap.Requests)
	for _, o := range outcome.All {
		label := fmt.Sprintf("%-15s: %d", strings.ToUpper(o.String()[:1])+strings.ReplaceAll(o.String()[1:], "_", " "), stats.Count(o))
		fmt.Fprintln(w, styles.ForOutcome(o).Render(label))
	}
	fmt.Fprintf(w, "Actual RPS     : %.2f\n", rps)
	fmt.Fprintf(w, "\nRESPONSE TIMES (ms) [Non-failed Only]\n")
	fmt.Fprintf(w, "   P50 : %.2f\n", stats.GetP50Service())
	fmt.Fprintf(w, "   P90 : %.2f\n", stats.GetP90Service())
	fmt.Fprintf(w, "   P95 : %.2f\n", stats.GetP95Service())
	fmt.Fprintf(w, "   P99 : %.2f\n", stats.GetP99Service())
	fmt.Fprintf(w, "   Max : %d\n", stats.ServiceTime.Max()/1000)

	if tasks := stats.Tasks(); len(tasks) > 0 {
		fmt.Fprintf(w, "\nPER TASK\n")
		fmt.Fprintf(w, "   %-20s %8s %6s %6s %10s %10s\n", "task", "reqs", "slow", "fail", "p50 ms", "p99 ms")
		for _, ts := range tasks {
			fmt.Fprintf(w, "   %-20s %8d %6d %6d %10.2f %10.2f\n", ts.Task, ts.Requests, ts.Slow, ts.Fail, ts.P50Ms, ts.P99Ms)
		}
	}

	errCounts := stats.GetErrorCounts()
	if len(errCounts) > 0 {
		fmt.Fprintf(w, "\n%s\n", styles.Error.Render("FAILURE SUMMARY"))
		msgs := make([]string, 0, len(errCounts))
		for msg := range errCounts {
			msgs = append(msgs, msg)
		}
		sort.Slice(msgs, func(i, j int) bool {
			if errCounts[msgs[i]] != errCounts[msgs[j]] {
				return errCounts[msgs[i]] > errCounts[msgs[j]]
			}
			return msgs[i] < msgs[j]
		})
		for _, msg := range msgs {
			fmt.Fprintf(w, "   %d x %s\n", errCounts[msg], msg)
		}
	}
	fmt.Fprintf(w, "======================================================================\n")
}

