package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/orchestrator"
	"github.com/houzhh15/aidg-transcribe/cmd/transcribe/internal/whisper"
)

func newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "检查 ffmpeg 与转写后端是否可用",
		Args:  cobra.NoArgs,
		RunE:  runHealth,
	}
	addJobFlags(cmd)
	cmd.Flags().String("format", "text", "输出格式 text/json")
	return cmd
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	l, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	client, err := newDependencyClient(cfg)
	if err != nil {
		return err
	}

	var (
		backends []whisper.Backend
		issues   []string
	)
	for _, name := range []string{cfg.Backend.Primary, cfg.Backend.Fallback} {
		if name == "" {
			continue
		}
		b, err := newBackend(name, cfg, client, l)
		if err != nil {
			issues = append(issues, fmt.Sprintf("后端 %s 无法创建: %v", name, err))
			continue
		}
		backends = append(backends, b)
	}

	status := orchestrator.CheckEnvironment(cmd.Context(), cfg.FFmpeg.Binary, backends...)
	status.Issues = append(issues, status.Issues...)
	if len(issues) > 0 {
		status.Ready = false
	}

	out := cmd.OutOrStdout()
	if format, _ := cmd.Flags().GetString("format"); format == "json" {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	} else {
		if status.FFmpeg.Available {
			fmt.Fprintf(out, "ffmpeg: ok (%s)\n", status.FFmpeg.Version)
		} else {
			fmt.Fprintf(out, "ffmpeg: unavailable (%s)\n", status.FFmpeg.Error)
		}
		for _, b := range status.Backends {
			if b.Healthy {
				fmt.Fprintf(out, "backend %s: ok (%s)\n", b.Name, b.Latency)
			} else {
				fmt.Fprintf(out, "backend %s: unavailable (%s)\n", b.Name, b.Error)
			}
		}
		for _, issue := range issues {
			fmt.Fprintln(out, issue)
		}
	}

	if !status.Ready {
		return fmt.Errorf("environment not ready: %d issue(s)", len(status.Issues))
	}
	return nil
}
