package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/replay-cli/api/schemas"
	"github.com/xkilldash9x/replay-cli/internal/observability"
	"github.com/xkilldash9x/replay-cli/pkg/capability/cdp"
	"github.com/xkilldash9x/replay-cli/pkg/synthesizer"
)

// newInspectCmd creates the `inspect` command: it loads a page, finds the
// elements matching a CSS selector, and prints the locator set the
// synthesizer would record for each. Useful for debugging brittle scripts.
func newInspectCmd() *cobra.Command {
	var limit int

	inspectCmd := &cobra.Command{
		Use:   "inspect <url> <selector>",
		Short: "Synthesizes locator sets for elements matching a selector",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := configFrom(ctx)
			url, selector := args[0], args[1]

			browser, err := cdp.New(ctx, logger, cdp.Options{
				Headless:        cfg.Browser.Headless,
				IgnoreTLSErrors: cfg.Browser.IgnoreTLSErrors,
				UserAgent:       cfg.Browser.UserAgent,
				Args:            cfg.Browser.Args,
			})
			if err != nil {
				return err
			}
			defer browser.Close()

			page, err := browser.NewPage(ctx)
			if err != nil {
				return err
			}
			defer page.Close()

			if err := page.Navigate(ctx, url); err != nil {
				return fmt.Errorf("navigating to %s: %w", url, err)
			}
			if err := page.WaitStable(ctx, schemas.WaitLoadingComplete, cfg.Replay.StepTimeout); err != nil {
				logger.Warn("page did not settle; inspecting anyway", zap.Error(err))
			}

			elements, err := page.Query(ctx, selector)
			if err != nil {
				return fmt.Errorf("querying %q: %w", selector, err)
			}
			if len(elements) == 0 {
				return fmt.Errorf("no elements match %q", selector)
			}
			if limit > 0 && len(elements) > limit {
				elements = elements[:limit]
			}

			synth := synthesizer.New(page, logger)
			for i, el := range elements {
				set, err := synth.Synthesize(ctx, el)
				if err != nil {
					logger.Warn("synthesis failed", zap.Int("match", i), zap.Error(err))
					continue
				}
				data, err := schemas.MarshalIndent(set)
				if err != nil {
					return err
				}
				fmt.Printf("-- match %d: %s\n%s\n", i, set.HumanLabel, data)
			}
			return nil
		},
	}

	inspectCmd.Flags().IntVar(&limit, "limit", 5, "maximum number of matches to inspect (0 for all)")
	return inspectCmd
}
