package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/dugoutdata/dugout/internal/errors"
	"github.com/dugoutdata/dugout/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify that the configuration loads, the clients can be built and every upstream budget has tokens.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		if logger == nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", errwrap.NewConfigInvalidError("logger not initialized"))
			return
		}

		if versionInfo.Version == "" {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("version information missing"))
			return
		}

		cfg, err := loadConfig()
		if err != nil {
			ExitWithCode(logger, ExitCodeFor(err), "Configuration check failed", err)
			return
		}

		a, err := newApp(cfg, logger)
		if err != nil {
			ExitWithCode(logger, ExitCodeFor(err), "Client setup failed", err)
			return
		}

		lines := []string{
			fmt.Sprintf("version   %s", versionInfo.Version),
			"config    ok",
			fmt.Sprintf("workers   %d", cfg.Workers),
		}
		names := make([]string, 0, len(a.limiters))
		for name := range a.limiters {
			names = append(names, name)
		}
		sort.Strings(names)
		now := time.Now()
		for _, name := range names {
			snap := a.limiters[name].Snapshot()
			status := "ok"
			if err := limiterHealth(snap, now); err != nil {
				status = err.Error()
			}
			lines = append(lines, fmt.Sprintf("%-9s %d/%d tokens, %s", name, snap.Tokens, snap.Capacity, status))
			logger.Debug("Limiter checked",
				zap.String("upstream", name),
				zap.Int("tokens", snap.Tokens),
				zap.Int("capacity", snap.Capacity))
		}

		fmt.Fprintln(cmd.OutOrStdout(), ascii.DrawBox(strings.Join(lines, "\n"), 0))
		logger.Info("All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
