package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/folio0/folio/internal/app"
	"github.com/folio0/folio/internal/config"
	"github.com/folio0/folio/internal/log"
	"github.com/folio0/folio/internal/runner"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logger := log.New(log.Config{Level: slog.LevelWarn})
	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("closing application", "error", closeErr)
		}
	}()

	question := strings.Join(args, " ")
	answer, err := a.Runner.Process(ctx, uuid.NewString(), question)
	if errors.Is(err, runner.ErrTurnUnavailable) {
		fmt.Fprintln(cmd.OutOrStdout(), runner.UnavailableMessage)
		return nil
	}
	if err != nil {
		return fmt.Errorf("processing question: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, answer.Text)
	if len(answer.Citations) > 0 {
		fmt.Fprintf(out, "  [sources: %s]\n", strings.Join(answer.Citations, ", "))
	}
	return nil
}
