package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/folio0/folio/internal/app"
	"github.com/folio0/folio/internal/config"
	"github.com/folio0/folio/internal/log"
	"github.com/folio0/folio/internal/runner"
)

// runChat is the interactive loop behind the bare folio command. One chat
// process is one session; state is gone when the process exits.
func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

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

	sessionID := uuid.NewString()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "folio — ask about %s (type 'exit' to quit)\n\n", cfg.ProfileName)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "exit" || text == "quit" {
			break
		}

		answer, err := a.Runner.Process(ctx, sessionID, text)
		switch {
		case errors.Is(err, runner.ErrTurnUnavailable):
			fmt.Fprintln(out, runner.UnavailableMessage)
			continue
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			logger.Error("turn failed", "error", err)
			fmt.Fprintln(out, "Something went wrong, please try again.")
			continue
		}

		fmt.Fprintln(out, answer.Text)
		if len(answer.Citations) > 0 {
			fmt.Fprintf(out, "  [sources: %s]\n", strings.Join(answer.Citations, ", "))
		}
		fmt.Fprintln(out)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}
