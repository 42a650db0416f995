package main

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/text/unicode/norm"
)

// writeTranscript writes text as NFC-normalised UTF-8 with a trailing
// newline, creating the parent directory. The file is replaced atomically.
func writeTranscript(path, text string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".transcript-*")
	if err != nil {
		return fmt.Errorf("create transcript: %w", err)
	}
	defer os.Remove(tmp.Name()) // 成功 rename 后为空操作

	data := norm.NFC.String(text)
	if data != "" {
		data += "\n"
	}
	if _, err := tmp.WriteString(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}
