// Command transcribe turns long recordings into text with whisper, either in
// one pass or split into chunks transcribed by parallel workers.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/orchestrator"
)

var version = "dev"

// exitCancelled follows the shell convention for SIGINT.
const exitCancelled = 130

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "transcribe",
		Short:         "AIDG 长音频转写工具",
		Long:          "把长录音切片后交给多个 whisper worker 并行转写，按原始顺序拼接文本。",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addGlobalFlags(rootCmd)

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "打印版本号",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	stop()
	if orchestrator.CodeOf(err) == orchestrator.JOB_CANCELLED || errors.Is(err, context.Canceled) {
		os.Exit(exitCancelled)
	}
	os.Exit(1)
}
