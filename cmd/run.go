package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/observability"
	"github.com/xkilldash9x/replay-cli/pkg/capability/cdp"
	"github.com/xkilldash9x/replay-cli/pkg/replay"
	"github.com/xkilldash9x/replay-cli/pkg/resolver"
)

// newRunCmd creates the `run` command, which replays a recorded script.
func newRunCmd() *cobra.Command {
	var (
		vars        []string
		startFrom   int
		stopOnError bool
		highlight   bool
		headful     bool
		outputPath  string
		onForbidden string
	)

	runCmd := &cobra.Command{
		Use:   "run <script.json>",
		Short: "Replays a recorded interaction script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := configFrom(ctx)

			script, err := loadScript(args[0])
			if err != nil {
				return err
			}
			bindings, err := parseBindings(vars)
			if err != nil {
				return err
			}
			if onForbidden != "skip" && onForbidden != "fail" {
				return fmt.Errorf("--on-forbidden must be 'skip' or 'fail', got %q", onForbidden)
			}

			browserOpts := cdp.Options{
				Headless:        cfg.Browser.Headless && !headful,
				IgnoreTLSErrors: cfg.Browser.IgnoreTLSErrors,
				UserAgent:       cfg.Browser.UserAgent,
				Args:            cfg.Browser.Args,
			}
			browser, err := cdp.New(ctx, logger, browserOpts)
			if err != nil {
				return err
			}
			defer browser.Close()

			page, err := browser.NewPage(ctx)
			if err != nil {
				return err
			}
			defer page.Close()

			session, err := replay.NewSession(replay.Config{
				Page:     page,
				Probe:    page,
				Logger:   logger,
				Listener: &consoleListener{logger: logger},
				Decide:   terminalDecider(logger, onForbidden == "skip"),
				Resolver: resolver.Options{
					Attempts:     cfg.Replay.ResolveAttempts,
					BaseBackoff:  cfg.Replay.ResolveBackoff,
					PollInterval: cfg.Replay.PollInterval,
				},
				TypeKeyDelay: cfg.Replay.TypeKeyDelay,
			})
			if err != nil {
				return err
			}

			opts := schemas.ReplayOptions{
				StepDelay:         cfg.Replay.StepDelay,
				Timeout:           cfg.Replay.StepTimeout,
				StopOnError:       stopOnError || cfg.Replay.StopOnError,
				HighlightElements: highlight || cfg.Replay.Highlight,
				StartFromStep:     startFrom,
			}
			if err := session.Start(ctx, script, bindings, opts); err != nil {
				return err
			}

			// The session loop runs on its own goroutine; the second group
			// member converts a SIGINT into a cooperative cancel.
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				<-session.Done()
				return nil
			})
			g.Go(func() error {
				select {
				case <-gctx.Done():
					session.Cancel()
				case <-session.Done():
				}
				return nil
			})
			if err := g.Wait(); err != nil {
				return err
			}

			result := session.Result()
			if err := writeResult(result, outputPath); err != nil {
				return err
			}

			logger.Info("replay result",
				zap.String("status", string(result.Status)),
				zap.Int("steps_executed", result.StepsExecuted),
				zap.Bool("success", result.Success))

			if !result.Success {
				if len(result.Errors) > 0 {
					return fmt.Errorf("replay ended with errors: %s", strings.Join(result.Errors, "; "))
				}
				return fmt.Errorf("replay did not complete: status %s", result.Status)
			}
			return nil
		},
	}

	runCmd.Flags().StringArrayVar(&vars, "var", nil, "variable binding as name=value; repeatable")
	runCmd.Flags().IntVar(&startFrom, "start-from", 0, "zero-based step index to start at")
	runCmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "halt on the first failed step")
	runCmd.Flags().BoolVar(&highlight, "highlight", false, "flash resolved elements before acting")
	runCmd.Flags().BoolVar(&headful, "headful", false, "run the browser with a visible window")
	runCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the replay result JSON to a file (default stdout)")
	runCmd.Flags().StringVar(&onForbidden, "on-forbidden", "skip", "policy for steps that require manual action: skip or fail")
	return runCmd
}

func loadScript(path string) (*schemas.Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening script: %w", err)
	}
	defer f.Close()
	script, err := schemas.DecodeScript(f)
	if err != nil {
		return nil, fmt.Errorf("loading script %s: %w", path, err)
	}
	return script, nil
}

// parseBindings turns repeated name=value flags into the variable map.
func parseBindings(vars []string) (map[string]string, error) {
	bindings := make(map[string]string, len(vars))
	for _, v := range vars {
		parts := strings.SplitN(v, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid --var %q, expected name=value", v)
		}
		bindings[parts[0]] = parts[1]
	}
	return bindings, nil
}

func writeResult(result schemas.ReplayResult, path string) error {
	data, err := schemas.MarshalIndent(result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if path == "" {
		fmt.Println(string(data))
		return nil
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// terminalDecider is the headless decision policy: there is no human to hand
// control to, so takeover-worthy prompts become skips (or hard failures).
func terminalDecider(logger *zap.Logger, skipForbidden bool) replay.DecisionFunc {
	return func(prompt replay.DecisionPrompt) replay.Decision {
		switch prompt.Reason {
		case replay.ReasonForbiddenAction:
			if skipForbidden {
				logger.Warn("skipping step that requires manual action",
					zap.Int("step", prompt.StepIndex),
					zap.String("action", string(prompt.Step.Type)))
				return replay.DecisionSkip
			}
			return replay.DecisionCancel
		case replay.ReasonResolveFailed:
			// Record the failure and let the stop-on-error policy decide.
			return replay.DecisionProceed
		default:
			return replay.DecisionProceed
		}
	}
}

// consoleListener narrates session lifecycle to the log.
type consoleListener struct {
	logger *zap.Logger
}

func (l *consoleListener) OnProgress(p schemas.Progress) {
	l.logger.Info("step",
		zap.Int("index", p.StepIndex),
		zap.Int("total", p.TotalSteps),
		zap.String("action", p.Description))
}

func (l *consoleListener) OnStateChange(from, to schemas.SessionStatus) {
	l.logger.Debug("session state", zap.String("from", string(from)), zap.String("to", string(to)))
}

func (l *consoleListener) OnTakeover(stepIndex int, reason string) {
	l.logger.Warn("manual takeover requested", zap.Int("step", stepIndex), zap.String("reason", reason))
}

func (l *consoleListener) OnComplete(result schemas.ReplayResult) {}
