package dependency

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathManager constructs and validates scratch paths under the work dir.
//
// Layout, one temp directory per decode and per model instance:
//
//	{workDir}/decode-XXXX/decoded.wav        ffmpeg output
//	{workDir}/whisper-XXXX/chunk_0000.wav    local CLI input of one instance
type PathManager struct {
	baseDir string
}

// NewPathManager creates a new PathManager instance.
func NewPathManager(baseDir string) *PathManager {
	return &PathManager{baseDir: baseDir}
}

// BaseDir returns the work dir root.
func (pm *PathManager) BaseDir() string {
	return pm.baseDir
}

// GetChunkBasename returns the standardized chunk basename.
// Example: GetChunkBasename(5) -> "chunk_0005"
func (pm *PathManager) GetChunkBasename(chunkIndex int) string {
	return fmt.Sprintf("chunk_%04d", chunkIndex)
}

// GetChunkAudioPath returns the WAV path of a chunk inside dir.
func (pm *PathManager) GetChunkAudioPath(dir string, chunkIndex int) string {
	return filepath.Join(dir, pm.GetChunkBasename(chunkIndex)+".wav")
}

// GetTranscriptPath returns the .txt path for a source file. An empty
// outputDir places the transcript next to the source.
// Example: GetTranscriptPath("/in/talk.mp3", "") -> "/in/talk.txt"
func GetTranscriptPath(sourcePath, outputDir string) string {
	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath)) + ".txt"
	if outputDir == "" {
		return filepath.Join(filepath.Dir(sourcePath), base)
	}
	return filepath.Join(outputDir, base)
}

// ValidatePath checks if a path is within the work dir and doesn't contain dangerous patterns.
func (pm *PathManager) ValidatePath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	absBaseDir, err := filepath.Abs(pm.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}

	rel, err := filepath.Rel(absBaseDir, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %s is outside work dir (%s)", path, pm.baseDir)
	}

	if hasTraversal(path) {
		return fmt.Errorf("path contains dangerous element '..'")
	}

	for _, prefix := range forbiddenPrefixes {
		if absPath == prefix || strings.HasPrefix(absPath, prefix+"/") {
			return fmt.Errorf("access to system directory %s is forbidden", prefix)
		}
	}

	info, err := os.Lstat(path)
	if err == nil && info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("symbolic links are not allowed")
	}

	return nil
}

// EnsureDir creates dir (and parents) after validating it lies in the work dir.
func (pm *PathManager) EnsureDir(dir string) (string, error) {
	if err := pm.ValidatePath(dir); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	return dir, nil
}
