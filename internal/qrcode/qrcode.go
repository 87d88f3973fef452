// Package qrcode writes the per-instance QR image embedded in typeset output.
package qrcode

import (
	"fmt"
	"path/filepath"

	qr "github.com/skip2/go-qrcode"
)

// FileName is the QR image name inside a working directory.
const FileName = "qr.png"

// Size is the rendered QR bitmap edge length in pixels.
const Size = 256

// Write encodes content (the instance id) into workDir/qr.png and returns the
// written path.
func Write(content, workDir string) (string, error) {
	path := filepath.Join(workDir, FileName)
	if err := qr.WriteFile(content, qr.Medium, Size, path); err != nil {
		return "", fmt.Errorf("write qr code %s: %w", path, err)
	}
	return path, nil
}
