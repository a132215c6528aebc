// cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/internal/agent"
	"github.com/xkilldash9x/pagepilot/internal/browser/page"
	"github.com/xkilldash9x/pagepilot/internal/llmclient"
	"github.com/xkilldash9x/pagepilot/internal/observability"
)

var runFlags struct {
	url               string
	headless          bool
	maxSteps          int
	viewportExpansion int
	enableScriptTool  bool
	includeAttributes []string
}

var runCmd = &cobra.Command{
	Use:   "run \"<task>\"",
	Short: "Run one natural-language task against a page.",
	Long: `Opens the target page in a browser and hands control to the agent,
which clicks, types, selects, scrolls, and waits until the task is satisfied
or the step budget runs out. The outcome and the full step trace are printed
as JSON on stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTask(cmd, args[0])
	},
}

func init() {
	runCmd.Flags().StringVar(&runFlags.url, "url", "", "page to open before the task starts (required)")
	runCmd.Flags().BoolVar(&runFlags.headless, "headless", true, "run the browser headless")
	runCmd.Flags().IntVar(&runFlags.maxSteps, "max-steps", 0, "override the step budget")
	runCmd.Flags().IntVar(&runFlags.viewportExpansion, "viewport-expansion", -1, "-1 whole page, 0 viewport only, >0 pad viewport by px")
	runCmd.Flags().BoolVar(&runFlags.enableScriptTool, "enable-script-tool", false, "expose the execute_javascript tool to the model")
	runCmd.Flags().StringSliceVar(&runFlags.includeAttributes, "include-attributes", nil, "extra element attributes to show the model")
	_ = runCmd.MarkFlagRequired("url")

	rootCmd.AddCommand(runCmd)
}

// parseChromeArg turns a configured browser switch into a chromedp flag.
// Bare switches ("disable-gpu") become boolean flags; valued switches
// ("proxy-server=socks5://localhost:9050") keep their value.
func parseChromeArg(arg string) (string, any) {
	name, value, found := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
	if found {
		return name, value
	}
	return name, true
}

func runTask(cmd *cobra.Command, task string) error {
	logger := observability.GetLogger()

	// Flags override the config file only when the user actually set them.
	if runFlags.maxSteps > 0 {
		cfg.SetAgentMaxSteps(runFlags.maxSteps)
	}
	if cmd.Flags().Changed("viewport-expansion") {
		cfg.SetAgentViewportExpansion(runFlags.viewportExpansion)
	}
	if cmd.Flags().Changed("enable-script-tool") {
		cfg.SetAgentScriptExecutionTool(runFlags.enableScriptTool)
	}
	if cmd.Flags().Changed("headless") {
		cfg.SetBrowserHeadless(runFlags.headless)
	}

	browserCfg := cfg.Browser()
	agentCfg := cfg.Agent()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(browserCfg.ViewportWidth, browserCfg.ViewportHeight),
	)
	if !browserCfg.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	for _, arg := range browserCfg.Args {
		name, value := parseChromeArg(arg)
		allocOpts = append(allocOpts, chromedp.Flag(name, value))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	logger.Info("Opening page", zap.String("url", runFlags.url))
	navCtx, cancelNav := context.WithTimeout(tabCtx, browserCfg.NavigationTimeout)
	defer cancelNav()
	if err := chromedp.Run(navCtx, chromedp.Navigate(runFlags.url)); err != nil {
		return fmt.Errorf("failed to open %s: %w", runFlags.url, err)
	}

	exec := page.NewCDPExecutor(tabCtx)
	if err := page.WaitForReadyState(ctx, exec, browserCfg.NavigationTimeout); err != nil {
		logger.Warn("Page did not reach readyState complete, continuing anyway", zap.Error(err))
	}

	controller := page.NewController(exec, page.Options{
		ViewportExpansion: agentCfg.ViewportExpansion,
		IncludeAttributes: append(agentCfg.IncludeAttributes, runFlags.includeAttributes...),
		ActionTimeout:     browserCfg.ActionTimeout,
	}, logger)

	llm, err := llmclient.NewClient(cfg.LLM(), logger)
	if err != nil {
		return err
	}

	ag, err := agent.New(
		controller,
		llm,
		agent.DefaultTools(agentCfg.ScriptExecutionTool),
		agent.Options{
			MaxSteps:        agentCfg.MaxSteps,
			WorkingLanguage: agentCfg.WorkingLanguage,
			Temperature:     cfg.LLM().Temperature,
			WaitWarnAfter:   agentCfg.WaitWarnAfter,
		},
		agent.Hooks{
			OnBeforeStep: func(step int) {
				logger.Info("Step started", zap.Int("step", step))
			},
			OnAfterStep: func(step int, entry agent.HistoryEntry) {
				logger.Info("Step finished",
					zap.Int("step", step),
					zap.String("action", entry.Action.Name),
					zap.String("result", entry.Action.Output),
				)
			},
		},
		logger,
	)
	if err != nil {
		return err
	}
	defer ag.Dispose("run finished")

	result, err := ag.Execute(ctx, task)
	if err != nil {
		return err
	}

	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Println(string(out))

	if !result.Success {
		logger.Warn("Task did not succeed", zap.String("data", result.Data))
		return fmt.Errorf("task failed: %s", result.Data)
	}
	return nil
}
