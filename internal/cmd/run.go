package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ensemble-chat/ensemble/internal/chat"
	"github.com/ensemble-chat/ensemble/internal/config"
	"github.com/ensemble-chat/ensemble/internal/logging"
	"github.com/ensemble-chat/ensemble/internal/modes"
	"github.com/ensemble-chat/ensemble/internal/progress"
	"github.com/ensemble-chat/ensemble/internal/transport"
	"github.com/ensemble-chat/ensemble/internal/tui"
)

var runCmd = &cobra.Command{
	Use:   "run <question>",
	Short: "Send a question through a conversation mode",
	Long: `Send one question to the configured model instances under the given
conversation mode and print every attributable result.

The instance roster comes from .ensemble.yaml. Modes with an unmet
instance minimum fall back to plain parallel responses.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("mode", "m", modes.ModeMultiple, "conversation mode (see 'ensemble modes')")
	runCmd.Flags().Bool("no-tui", false, "print results without the live progress view")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	mode, _ := cmd.Flags().GetString("mode")
	noTUI, _ := cmd.Flags().GetBool("no-tui")

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	roster := cfg.Roster()
	if len(roster) == 0 {
		return fmt.Errorf("no model instances configured; add an instances section to .ensemble.yaml")
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	clientCfg := cfg.Transport.ClientConfig()
	clientCfg.Logger = logger
	client, err := transport.NewClient(clientCfg)
	if err != nil {
		return err
	}

	store := progress.NewStore()
	aborts := modes.NewAbortRegistry()
	mc := &modes.Context{
		Instances: roster,
		Config:    cfg.Modes,
		Settings:  cfg.Settings.Params(),
		Responder: client,
		Store:     store,
		Aborts:    aborts,
		Logger:    logger.WithConversation(chat.NewTurnID()).WithMode(mode),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	content := chat.TextContent(args[0])
	fallback := modes.MultipleFallback(mc)

	var results []*modes.Result
	if noTUI {
		results, err = modes.Send(ctx, mode, content, mc, fallback)
	} else {
		results, err = runWithViewer(ctx, mode, content, mc, fallback)
	}
	if err != nil {
		return err
	}

	printResults(cmd, roster, mode, results)
	return nil
}

// runWithViewer runs the turn in the background while the progress viewer
// owns the terminal, then returns the settled results.
func runWithViewer(ctx context.Context, mode string, content chat.Content, mc *modes.Context, fallback modes.Fallback) ([]*modes.Result, error) {
	states, cancelSub := mc.Store.Subscribe()
	defer cancelSub()

	done := make(chan struct{})
	var results []*modes.Result
	var runErr error
	go func() {
		defer close(done)
		results, runErr = modes.Send(ctx, mode, content, mc, fallback)
	}()

	viewer := tui.NewViewer(mode, states, done, mc.Aborts.CancelAll)
	if _, err := tea.NewProgram(viewer).Run(); err != nil {
		// The viewer failing must not lose the turn; wait it out plainly.
		<-done
	}

	<-done
	return results, runErr
}

func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	return logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
}

// printResults writes every populated result slot with its instance label.
func printResults(cmd *cobra.Command, roster []modes.Instance, mode string, results []*modes.Result) {
	out := cmd.OutOrStdout()

	populated := 0
	for i, res := range results {
		if res == nil {
			continue
		}
		populated++

		label := fmt.Sprintf("slot %d", i+1)
		// Scattershot answers one variation per slot; every other mode
		// keeps slots aligned with the roster.
		if mode != modes.ModeScattershot && i < len(roster) {
			label = roster[i].DisplayLabel()
		}

		fmt.Fprintf(out, "## %s\n\n%s\n\n", label, strings.TrimSpace(res.Content))
		if res.Usage != nil {
			fmt.Fprintf(out, "_%d tokens", res.Usage.TotalTokens)
			if res.Usage.Cost > 0 {
				fmt.Fprintf(out, ", $%.4f", res.Usage.Cost)
			}
			fmt.Fprint(out, "_\n\n")
		}
	}

	if populated == 0 {
		fmt.Fprintln(out, "No results; every branch failed or was canceled.")
	}
}
