package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/tabretry/internal/control"
	"github.com/vietddude/tabretry/internal/core/config"
	"github.com/vietddude/tabretry/internal/core/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show retry counters and pending reloads",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if err := requireSharedStore(cfg); err != nil {
		slog.Error("Cannot read retry state", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backends, err := control.OpenBackends(ctx, cfg, nil)
	if err != nil {
		slog.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = backends.Close()
	}()

	states, err := backends.Retries.List(ctx)
	if err != nil {
		slog.Error("Failed to list retry counters", "error", err)
		os.Exit(1)
	}

	var timers []domain.ScheduledTimer
	if cfg.Timers.Backend == config.TimersRedis {
		timers, err = backends.Timers.List(ctx)
		if err != nil {
			slog.Error("Failed to list timers", "error", err)
			os.Exit(1)
		}
	} else {
		slog.Warn("Local timers live inside the running service, pending reloads are not shown")
	}

	writeStatus(os.Stdout, states, timers, time.Now())
}

func writeStatus(out io.Writer, states []domain.TabRetryState, timers []domain.ScheduledTimer, now time.Time) {
	pending := make(map[domain.TabID]time.Time, len(timers))
	for _, t := range timers {
		pending[t.TabID] = t.FireAt
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TAB\tRETRIES\tUPDATED\tNEXT RELOAD")

	seen := make(map[domain.TabID]bool, len(states))
	for _, s := range states {
		seen[s.TabID] = true
		_, _ = fmt.Fprintf(w, "%d\t%d\t%s\t%s\n",
			s.TabID, s.RetryCount, formatTime(s.UpdatedAt), formatNext(pending, s.TabID, now))
	}
	// First errors schedule a timer before any counter is written
	for _, t := range timers {
		if seen[t.TabID] {
			continue
		}
		_, _ = fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", t.TabID, 0, "-", formatNext(pending, t.TabID, now))
	}
	_ = w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func formatNext(pending map[domain.TabID]time.Time, tab domain.TabID, now time.Time) string {
	at, ok := pending[tab]
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%s (in %s)", at.Format(time.RFC3339), at.Sub(now).Round(time.Second))
}
