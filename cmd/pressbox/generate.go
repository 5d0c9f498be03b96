package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/zulandar/pressbox/internal/completion"
	"github.com/zulandar/pressbox/internal/progress"
	"golang.org/x/term"
)

func newGenerateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "generate <fixture-id>",
		Short: "Generate one match report from the terminal",
		Long:  "Runs the full report pipeline for a fixture id and prints the finished report.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Pressbox config file")
	return cmd
}

func runGenerate(cmd *cobra.Command, configPath, fixtureID string) error {
	godotenv.Load()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, cfg, nil)
	if err != nil {
		return err
	}

	sess, err := st.orchestrator.CreateSession(ctx, fixtureID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	isTTY := term.IsTerminal(int(os.Stdout.Fd()))
	sink := func(u progress.Update) {
		if isTTY {
			fmt.Fprintf(out, "\r[%3d%%] %-50s", u.Percent, u.Message)
		} else {
			fmt.Fprintf(out, "[%3d%%] %s\n", u.Percent, u.Message)
		}
	}

	if err := st.orchestrator.Run(ctx, sess.ID, sink); err != nil {
		if isTTY {
			fmt.Fprintln(out)
		}
		return err
	}
	if isTTY {
		fmt.Fprintln(out)
	}

	final, err := st.store.Get(ctx, sess.ID)
	if err != nil {
		return err
	}
	return printReport(out, final.FinalArtifact)
}

// printReport renders the final artifact as plain text.
func printReport(out io.Writer, artifact []byte) error {
	var rep completion.FinalReport
	if err := sonic.Unmarshal(artifact, &rep); err != nil {
		return fmt.Errorf("decode report: %w", err)
	}

	fmt.Fprintf(out, "\n%s\n%s\n\n", rep.Title, strings.Repeat("=", len(rep.Title)))
	for _, sec := range rep.Sections {
		fmt.Fprintf(out, "%s\n%s\n\n", sec.Heading, sec.Body)
	}
	if len(rep.TalkingPoints) > 0 {
		fmt.Fprintln(out, "Talking points:")
		for _, tp := range rep.TalkingPoints {
			fmt.Fprintf(out, "  - %s\n", tp)
		}
	}
	return nil
}
