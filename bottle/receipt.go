// Package bottle provisions the external playback engine from prebuilt binary bottles.
package bottle

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/porthole-app/porthole/filesystem"
)

// receiptFile sits at the root of a published install. Probes treat a
// tree without it as not installed, which is what makes half-extracted
// staging leftovers invisible to the rest of the app.
const receiptFile = "receipt.json"

// Receipt records what a finished install put on disk.
type Receipt struct {
	Formula     string    `json:"formula"`
	Version     string    `json:"version"`
	Tag         string    `json:"tag"`
	PrimaryLib  string    `json:"primary_lib"`
	Libraries   []string  `json:"libraries"`
	Formulae    []string  `json:"formulae"`
	InstalledAt time.Time `json:"installed_at"`
}

// writeReceipt records the install manifest into the staged tree so it
// publishes in the same directory swap as the libraries it describes.
func writeReceipt(dir string, receipt Receipt) error {
	data, err := json.MarshalIndent(receipt, "", "  ")
	if err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}

	if err := filesystem.API().WriteFile(filepath.Join(dir, receiptFile), data, 0o644); err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}

	return nil
}

// readReceipt loads the manifest of a published install.
func readReceipt(installDir string) (Receipt, error) {
	data, err := filesystem.API().ReadFile(filepath.Join(installDir, receiptFile))
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %s", ErrNotInstalled, err)
	}

	var receipt Receipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		return Receipt{}, fmt.Errorf("%w: malformed receipt: %s", ErrNotInstalled, err)
	}

	return receipt, nil
}
