package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andresmedinaorbidi/clarity/internal/logging"
	"github.com/andresmedinaorbidi/clarity/internal/orchestrator"
	"github.com/andresmedinaorbidi/clarity/internal/store"
)

var (
	chatSessionID string
	chatVerbose   bool
)

// chatCmd runs an interactive session on stdin
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the engine from the terminal",
	Long: `Start or resume a session and chat with it line by line.

Each turn is saved to the configured session store. Type /quit to leave.

Examples:
  # Start a new session
  clarity chat

  # Resume a stored session
  clarity chat --session 6f1c2a9e-...`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "resume the session with this id")
	chatCmd.Flags().BoolVarP(&chatVerbose, "verbose", "v", false, "write logs to stdout alongside the conversation")
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Logs would interleave with the conversation.
	var logger *logging.Logger
	if !chatVerbose {
		logger = logging.Nop()
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Close(context.WithoutCancel(ctx))
	}()

	st, err := openSession(ctx, a, chatSessionID)
	if err != nil {
		return err
	}
	return chat(ctx, a, st, cmd.InOrStdin(), cmd.OutOrStdout())
}

// openSession loads id, or creates and saves a new session when id is empty.
func openSession(ctx context.Context, a *app, id string) (*orchestrator.State, error) {
	if id == "" {
		st := orchestrator.NewState(a.cfg.Session.RequiredKeys()...)
		if err := a.store.Save(ctx, st); err != nil {
			return nil, fmt.Errorf("saving session: %w", err)
		}
		return st, nil
	}
	st, err := a.store.Load(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("session %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return st, nil
}

// chat reads one message per line from in until EOF or /quit.
func chat(ctx context.Context, a *app, st *orchestrator.State, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "Session %s (phase: %s)\n", st.ID, st.Phase())

	sink := terminalSink(out)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		_, turnErr := a.engine.HandleMessage(ctx, st, line, sink)
		if err := a.store.Save(context.WithoutCancel(ctx), st); err != nil {
			a.logger.Error(ctx, "saving session after turn", zap.String("session_id", st.ID), zap.Error(err))
		}
		if turnErr != nil {
			if ctx.Err() != nil {
				return turnErr
			}
			fmt.Fprintf(out, "\n(turn failed: %v)", turnErr)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out)
	return scanner.Err()
}

// terminalSink prints fragments for a person rather than a client: the
// serialized state is dropped and checkpoints become a prompt.
func terminalSink(out io.Writer) orchestrator.Sink {
	return func(f orchestrator.Fragment) {
		switch f.Kind {
		case orchestrator.FragmentState:
			return
		case orchestrator.FragmentCheckpoint:
			fmt.Fprintf(out, "\n\n[%s ready for review. Say \"proceed\" to continue or describe what to change.]", f.Gate)
		default:
			fmt.Fprint(out, f.String())
		}
	}
}
