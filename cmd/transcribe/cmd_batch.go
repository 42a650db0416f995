package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/dependency"
	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/queue"
)

// audioExtensions 批量模式支持的音频扩展名
var audioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".flac": true,
	".ogg":  true,
	".wma":  true,
	".aac":  true,
	".opus": true,
}

// errNoneSucceeded makes batch exit non-zero when every file failed.
var errNoneSucceeded = errors.New("no file was transcribed")

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "逐个转写目录中的全部音频文件",
		Long: "按文件名顺序转写目录（不递归）中所有支持的音频文件，\n" +
			"每个文件的文本写入 <name>.txt（或 --output-dir 下）。",
		Args: cobra.ExactArgs(1),
		RunE: runBatch,
	}
	addJobFlags(cmd)
	cmd.Flags().String("output-dir", "", "转写结果目录，默认与音频文件同目录")
	return cmd
}

// listAudioFiles returns the supported audio files directly inside dir,
// sorted by name.
func listAudioFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("directory not found: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if audioExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	l, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	files, err := listAudioFiles(args[0])
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no supported audio files in %s", args[0])
	}

	outputDir, _ := cmd.Flags().GetString("output-dir")
	quiet, _ := cmd.Flags().GetBool("quiet")
	out := cmd.OutOrStdout()
	printer := newProgressPrinter(out, quiet)

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, l, files)
	if err != nil {
		return err
	}
	defer a.Close()

	if !quiet {
		fmt.Fprintf(out, "Found %d files in %s\n", len(files), args[0])
	}

	_, err = processBatch(ctx, out, files, quiet, l, func(ctx context.Context, path string) error {
		printer.Preparing()
		res, err := a.transcribe(ctx, path, printer.Handle)
		if err != nil {
			l.Error("file failed", "file", path, "error", err)
			return err
		}
		target := dependency.GetTranscriptPath(path, outputDir)
		if err := writeTranscript(target, res.Text); err != nil {
			l.Error("save transcript", "file", target, "error", err)
			return err
		}
		if !quiet {
			fmt.Fprintf(out, "Saved: %s\n", target)
		}
		return nil
	})
	return err
}

// processBatch runs handle for every file through a serial queue, prints
// the "Done: ok/total" summary and returns the final entry snapshots.
// The error is ctx's when the batch was interrupted, errNoneSucceeded when
// no file completed, nil otherwise.
func processBatch(ctx context.Context, out io.Writer, files []string, quiet bool, l *slog.Logger,
	handle func(ctx context.Context, path string) error) ([]queue.Entry[string], error) {
	q := queue.New[string](l)
	for _, f := range files {
		if _, err := q.Submit(f); err != nil {
			return nil, err
		}
	}
	q.Close()

	pos := 0
	runErr := q.Run(ctx, func(ctx context.Context, e queue.Entry[string]) error {
		pos++
		if !quiet {
			fmt.Fprintf(out, "[%d/%d] %s\n", pos, len(files), filepath.Base(e.Payload))
		}
		return handle(ctx, e.Payload)
	})

	entries := q.Entries()
	ok := 0
	for _, e := range entries {
		if e.Status == queue.StatusCompleted {
			ok++
		}
	}
	fmt.Fprintf(out, "Done: %d/%d files processed\n", ok, len(files))

	if runErr != nil {
		return entries, runErr
	}
	if ok == 0 {
		return entries, errNoneSucceeded
	}
	return entries, nil
}
