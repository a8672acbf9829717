package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/citesearch/config"
	"github.com/mohammad-safakhou/citesearch/internal/events"
	"github.com/mohammad-safakhou/citesearch/internal/pipeline"
	"github.com/spf13/cobra"
)

func askCMD(cfgPath *string) *cobra.Command {
	var quiet bool
	ask := &cobra.Command{
		Use:   "ask <query>",
		Short: "Answer one query and print the result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(*cfgPath)
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.General.MaxProcessingTime)
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			sessionID := uuid.NewString()
			sub := a.hub.Subscribe(sessionID)
			printCtx, stopPrint := context.WithCancel(ctx)
			defer stopPrint()
			printed := make(chan struct{})
			if quiet {
				close(printed)
			} else {
				go func() {
					defer close(printed)
					printProgress(printCtx, cmd.ErrOrStderr(), sub)
				}()
			}

			query := strings.Join(args, " ")
			answer, runErr := a.pipeline.Run(ctx, query, sessionID)
			if runErr != nil && pipeline.IsValidation(runErr) {
				sub.Close()
			}
			waitDrained(printed, stopPrint, progressDrainTimeout)
			sub.Close()
			if runErr != nil {
				return runErr
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"status": "success", "query": query, "result": answer})
		},
	}
	ask.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print progress events")
	return ask
}

// progressDrainTimeout bounds how long ask waits for the printer to see a
// terminal event once the pipeline has returned.
const progressDrainTimeout = 2 * time.Second

// waitDrained waits for done, cancelling the printer through stop when it
// has not finished within timeout.
func waitDrained(done <-chan struct{}, stop context.CancelFunc, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		stop()
		<-done
	}
}

func printProgress(ctx context.Context, w io.Writer, sub *events.Subscription) {
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			return
		}
		if ev.Type == events.TypeKeepalive {
			continue
		}
		if ev.Details != nil {
			fmt.Fprintf(w, "[%s] %s: %s\n", ev.Timestamp, ev.Step, strings.ReplaceAll(*ev.Details, "\n", "; "))
		} else {
			fmt.Fprintf(w, "[%s] %s\n", ev.Timestamp, ev.Step)
		}
		if ev.Step == pipeline.StepSynthesizeDone || ev.Step == pipeline.StepError {
			return
		}
	}
}
