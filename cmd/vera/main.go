// Command vera drives a verification-first browser agent from the command
// line: point it at a config file and a goal, and it launches a browser,
// runs the step loop to completion or failure, and narrates progress to the
// console. Grounded on haasonsaas-nexus's cmd/nexus build*Cmd tree pattern —
// one buildXCmd() function per subcommand, flags bound to local vars,
// RunE closures that load config then do the work — narrowed from nexus's
// many command groups (serve/channels/skills/mcp/...) down to the handful
// this agent actually has: run and navigate, plus the root command's
// --version flag.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anxuanzi/vera-go"
	"github.com/anxuanzi/vera-go/internal/config"
	"github.com/anxuanzi/vera-go/internal/console"
	"github.com/anxuanzi/vera-go/internal/obslog"
	"github.com/anxuanzi/vera-go/trace"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vera",
		Short:         "vera drives a verification-first browser agent",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
	}
	root.AddCommand(buildRunCmd(), buildNavigateCmd())
	return root
}

// buildRunCmd runs one goal to completion (or failure) against a freshly
// launched browser.
func buildRunCmd() *cobra.Command {
	var (
		configPath string
		envPath    string
		startURL   string
		maxSteps   int
		stopOnFail bool
	)

	cmd := &cobra.Command{
		Use:   "run [goal]",
		Short: "Run a goal to completion against a freshly launched browser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			goal := args[0]

			f, err := config.Load(configPath, envPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger := obslog.New(obslog.Config{Level: f.Logging.Level, Format: f.Logging.Format})
			consoleSink := console.New(f.Trace.Console)

			sinks := []trace.Sink{trace.NoopSink{}}
			if f.Trace.Console {
				sinks = append(sinks, consoleSink)
			}
			if f.Trace.JSONLPath != "" {
				jsonlSink, err := trace.NewJSONLFileSink(f.Trace.JSONLPath)
				if err != nil {
					return fmt.Errorf("open trace file: %w", err)
				}
				defer jsonlSink.Close()
				sinks = append(sinks, jsonlSink)
			}

			agentCfg := f.ToAgentConfig()
			agentCfg.TraceSinks = sinks

			agent, err := vera.New(agentCfg)
			if err != nil {
				return fmt.Errorf("construct agent: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := agent.Start(ctx); err != nil {
				return fmt.Errorf("start agent: %w", err)
			}
			defer agent.Close()

			if startURL != "" {
				if err := agent.Navigate(ctx, startURL); err != nil {
					return fmt.Errorf("navigate: %w", err)
				}
			}

			logger.Info(ctx, "run started", "goal", goal, "max_steps", maxSteps)

			result, err := agent.Run(ctx, goal, vera.RunOptions{
				MaxSteps:      maxSteps,
				StopOnFailure: stopOnFail,
			})
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}

			summary := "goal reached"
			if !result.Success {
				summary = "goal not reached"
			}
			if f.Trace.Console {
				consoleSink.Done(result.Success, summary, 0)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "success=%v steps=%d\n", result.Success, len(result.Outcomes))
			if !result.Success {
				return fmt.Errorf("run did not reach goal: %s", result.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "vera.yaml", "Path to YAML configuration file")
	cmd.Flags().StringVar(&envPath, "env", ".env", "Path to a .env file (optional)")
	cmd.Flags().StringVar(&startURL, "url", "", "URL to navigate to before running")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 30, "Maximum number of steps")
	cmd.Flags().BoolVar(&stopOnFail, "stop-on-failure", false, "Stop on the first failed required verification")
	return cmd
}

// buildNavigateCmd launches a browser, navigates to a URL, and exits —
// useful for smoke-testing a profile or proxy configuration without
// spending a model call.
func buildNavigateCmd() *cobra.Command {
	var (
		configPath string
		envPath    string
	)

	cmd := &cobra.Command{
		Use:   "navigate [url]",
		Short: "Launch a browser and navigate to a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.Load(configPath, envPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			agent, err := vera.New(f.ToAgentConfig())
			if err != nil {
				return fmt.Errorf("construct agent: %w", err)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if err := agent.Start(ctx); err != nil {
				return fmt.Errorf("start agent: %w", err)
			}
			defer agent.Close()

			if err := agent.Navigate(ctx, args[0]); err != nil {
				return fmt.Errorf("navigate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "navigated to %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "vera.yaml", "Path to YAML configuration file")
	cmd.Flags().StringVar(&envPath, "env", ".env", "Path to a .env file (optional)")
	return cmd
}
