package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/tabretry/internal/control"
	"github.com/vietddude/tabretry/internal/core/config"
	"github.com/vietddude/tabretry/internal/core/domain"
)

var resetCmd = &cobra.Command{
	Use:   "reset [tab_id]",
	Short: "Delete a tab's retry counter and pending reload",
	Args:  cobra.ExactArgs(1),
	Run:   runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) {
	tab, err := domain.ParseTabID(args[0])
	if err != nil {
		fmt.Printf("Invalid tab id: %v\n", err)
		os.Exit(1)
	}

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

	if err := backends.Reset(ctx, tab); err != nil {
		slog.Error("Failed to reset tab", "tab", tab, "error", err)
		os.Exit(1)
	}
	if cfg.Timers.Backend != config.TimersRedis {
		slog.Warn("Local timers live inside the running service, a pending reload may still fire")
	}

	fmt.Printf("Successfully reset tab %d\n", tab)
}
