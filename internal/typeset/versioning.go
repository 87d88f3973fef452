package typeset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// HistoryDir is the subdirectory of a working directory that holds prior
// artifact versions.
const HistoryDir = "history"

const (
	versionPrefix = "final-v"
	versionSuffix = ".pdf"
)

// RotateArtifact copies an existing final.pdf into history/final-v<N>.pdf,
// where N is one more than the highest version already present. With no prior
// artifact it is a no-op; with no history directory it starts at v1.
//
// Versions are compared numerically, not lexically, so rotation stays correct
// past v9 (lexical descending sort would rank "final-v9.pdf" above
// "final-v10.pdf" and silently reuse version numbers).
func RotateArtifact(workDir string) error {
	current := filepath.Join(workDir, ArtifactFile)
	if _, err := os.Stat(current); os.IsNotExist(err) {
		return nil // nothing to rotate
	} else if err != nil {
		return fmt.Errorf("stat %s: %w", current, err)
	}

	histDir := filepath.Join(workDir, HistoryDir)
	if err := os.MkdirAll(histDir, 0o755); err != nil {
		return fmt.Errorf("create history dir %s: %w", histDir, err)
	}

	next, err := nextVersion(histDir)
	if err != nil {
		return err
	}

	dst := filepath.Join(histDir, fmt.Sprintf("%s%d%s", versionPrefix, next, versionSuffix))
	if err := copyArtifact(current, dst); err != nil {
		return fmt.Errorf("rotate %s to %s: %w", current, dst, err)
	}
	return nil
}

// nextVersion scans the history directory for final-v<N>.pdf entries and
// returns max(N)+1, or 1 when none exist.
func nextVersion(histDir string) (int, error) {
	entries, err := os.ReadDir(histDir)
	if err != nil {
		return 0, fmt.Errorf("read history dir %s: %w", histDir, err)
	}
	highest := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n, ok := parseVersion(e.Name())
		if ok && n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}

// parseVersion extracts N from "final-v<N>.pdf"; ok is false for any other name.
func parseVersion(name string) (int, bool) {
	if !strings.HasPrefix(name, versionPrefix) || !strings.HasSuffix(name, versionSuffix) {
		return 0, false
	}
	num := strings.TrimSuffix(strings.TrimPrefix(name, versionPrefix), versionSuffix)
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func copyArtifact(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
