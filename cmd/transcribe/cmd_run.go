package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/dependency"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <audio-file>",
		Short: "转写单个音频文件",
		Long: "转写单个音频文件，文本写入 --output（默认与音频同目录的 <name>.txt）。\n" +
			"进度以 [STATUS]/[DURATION]/[CHUNKS]/[PROGRESS] 行输出到 stdout。",
		Args: cobra.ExactArgs(1),
		RunE: runTranscribe,
	}
	addJobFlags(cmd)
	cmd.Flags().StringP("output", "o", "", "转写结果文件路径")
	return cmd
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	l, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	source := args[0]
	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = dependency.GetTranscriptPath(source, "")
	}
	quiet, _ := cmd.Flags().GetBool("quiet")
	printer := newProgressPrinter(cmd.OutOrStdout(), quiet)

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, l, args)
	if err != nil {
		return err
	}
	defer a.Close()

	printer.Preparing()
	res, err := a.transcribe(ctx, source, printer.Handle)
	if err != nil {
		return err
	}

	if err := writeTranscript(output, res.Text); err != nil {
		return err
	}
	if len(res.ChunkErrors) > 0 {
		l.Warn("transcript has gaps", "failed_chunks", res.FailedIndices())
	}
	if len(res.RepeatedChunks) > 0 {
		l.Warn("possible repeated text across chunks", "chunks", res.RepeatedChunks)
	}
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Saved: %s\n", output)
	}
	return nil
}
