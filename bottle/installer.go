// Package bottle provisions the external playback engine from prebuilt binary bottles.
package bottle

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/viper"

	"github.com/porthole-app/porthole/constant"
	"github.com/porthole-app/porthole/filesystem"
	"github.com/porthole-app/porthole/key"
	"github.com/porthole-app/porthole/log"
	"github.com/porthole-app/porthole/network"
	"github.com/porthole-app/porthole/util"
	"github.com/porthole-app/porthole/version"
	"github.com/porthole-app/porthole/where"
)

// Stage identifies a pipeline phase for progress reporting.
type Stage string

const (
	StageResolve  Stage = "resolve"
	StageAuth     Stage = "authenticate"
	StageDownload Stage = "download"
	StageExtract  Stage = "extract"
	StagePatch    Stage = "patch"
	StagePublish  Stage = "publish"
)

// Event is one progress notification out of a running install. Current
// and Total carry bytes during downloads and formula counts elsewhere.
type Event struct {
	Stage   Stage
	Formula string
	Current int64
	Total   int64
}

// Options configure an Installer. Zero fields take production defaults.
type Options struct {
	// Formula to install. Defaults to the engine.formula config key.
	Formula string
	// InstallDir is the publish target. Defaults to where.Engine().
	InstallDir string
	// FormulaAPIBase overrides the metadata endpoint.
	FormulaAPIBase string
	// TokenURL overrides the registry token endpoint.
	TokenURL string
	// Client serves metadata and token exchanges.
	Client *http.Client
	// Download serves archive transfers on a longer timeout.
	Download *http.Client
	// Loader verifies published libraries for IsReady.
	Loader Loader
	// Progress receives pipeline events. Optional.
	Progress func(Event)
}

// InstallOptions adjust a single Install call.
type InstallOptions struct {
	// Force reinstalls over an existing tree.
	Force bool
}

// Installer provisions and inspects the external playback engine.
type Installer struct {
	opts     Options
	metadata *Metadata

	mu         sync.Mutex
	installing bool
	status     Status
}

// NewInstaller builds an installer, sweeps staging leftovers from
// interrupted runs and probes the install tree for the initial status.
func NewInstaller(opts Options) *Installer {
	if opts.Formula == "" {
		opts.Formula = viper.GetString(key.EngineFormula)
	}
	if opts.InstallDir == "" {
		opts.InstallDir = where.Engine()
	}
	if opts.FormulaAPIBase == "" {
		opts.FormulaAPIBase = constant.FormulaAPIBase
	}
	if opts.TokenURL == "" {
		opts.TokenURL = constant.RegistryTokenURL
	}
	if opts.Client == nil {
		opts.Client = network.Client
	}
	if opts.Download == nil {
		opts.Download = network.DownloadClient
	}
	if opts.Loader == nil {
		opts.Loader = structuralLoader{}
	}

	i := &Installer{
		opts:     opts,
		metadata: NewMetadata(opts.FormulaAPIBase, opts.Client),
	}

	i.sweep()
	i.status = i.probe()

	return i
}

// Install provisions the engine end to end. Exactly one install runs at
// a time: a concurrent call fails fast with ErrAlreadyInstalling rather
// than queueing behind the in-flight attempt.
func (i *Installer) Install(ctx context.Context, opts InstallOptions) error {
	i.mu.Lock()
	if i.installing {
		i.mu.Unlock()
		return ErrAlreadyInstalling
	}
	if i.status.State == StateInstalled && !opts.Force {
		i.mu.Unlock()
		return ErrAlreadyInstalled
	}
	i.installing = true
	i.status = Status{State: StateInstalling}
	i.mu.Unlock()

	staging := i.stagingDir()
	err := i.run(ctx, staging)

	i.mu.Lock()
	defer i.mu.Unlock()
	i.installing = false

	if err != nil {
		_ = filesystem.API().RemoveAll(staging)
		i.status = Status{State: StateFailed, Reason: err.Error()}
		return err
	}

	i.status = Status{State: StateInstalled}
	return nil
}

// run executes the pipeline into the staging tree. Nothing here touches
// the install dir until publish, so a failure at any point leaves the
// previous install untouched.
func (i *Installer) run(ctx context.Context, staging string) error {
	fs := filesystem.API()

	i.emit(Event{Stage: StageResolve, Formula: i.opts.Formula})
	closure, err := i.metadata.Closure(ctx, i.opts.Formula)
	if err != nil {
		return err
	}

	descriptors := make([]*Descriptor, 0, len(closure))
	for _, formula := range closure {
		desc, err := Describe(formula)
		if err != nil {
			return err
		}
		descriptors = append(descriptors, desc)
	}

	libDir := filepath.Join(staging, "lib")
	if err := fs.MkdirAll(libDir, 0o755); err != nil {
		return fmt.Errorf("%w: %s", ErrExtractFailed, err)
	}

	total := int64(len(descriptors))
	for idx, desc := range descriptors {
		i.emit(Event{Stage: StageAuth, Formula: desc.Name, Current: int64(idx + 1), Total: total})
		token, err := i.token(ctx, desc.Name)
		if err != nil {
			return err
		}

		archive := filepath.Join(staging, util.SanitizeFilename(desc.Name+"-"+desc.Version)+".tar.gz")
		if err := i.download(ctx, desc, token, archive); err != nil {
			return err
		}

		i.emit(Event{Stage: StageExtract, Formula: desc.Name, Current: int64(idx + 1), Total: total})
		if err := extractArchive(archive, libDir); err != nil {
			return err
		}
		_ = fs.Remove(archive)
	}

	// Network is done. The remaining stages ignore ctx so a cancellation
	// can never publish a half-patched tree.
	root := descriptors[0]

	i.emit(Event{Stage: StagePatch, Formula: root.Name})
	patched, err := patchTree(libDir, i.opts.InstallDir)
	if err != nil {
		return err
	}
	log.Debugf("patched %d libraries for %s", patched, root.Name)

	primary, err := primaryLibName(libDir, root.Name)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrExtractFailed, err)
	}

	receipt := Receipt{
		Formula:    root.Name,
		Version:    root.Version,
		Tag:        root.Tag,
		PrimaryLib: primary,
		Libraries:  libraryNames(libDir),
		Formulae: lo.Map(descriptors, func(desc *Descriptor, _ int) string {
			return desc.Name
		}),
		InstalledAt: time.Now().UTC(),
	}
	if err := writeReceipt(staging, receipt); err != nil {
		return err
	}

	i.emit(Event{Stage: StagePublish, Formula: root.Name})
	return i.publish(staging)
}

// publish swaps the staged tree into place. An existing install moves
// aside first and is restored if the swap fails, so the install dir
// never holds a partial tree.
func (i *Installer) publish(staging string) error {
	fs := filesystem.API()
	install := i.opts.InstallDir
	previous := install + ".previous"

	hadPrevious, _ := fs.DirExists(install)
	if hadPrevious {
		_ = fs.RemoveAll(previous)
		if err := filesystem.MoveDir(install, previous); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
	}

	if err := filesystem.MoveDir(staging, install); err != nil {
		if hadPrevious {
			_ = filesystem.MoveDir(previous, install)
		}
		return fmt.Errorf("publish: %w", err)
	}

	if hadPrevious {
		_ = fs.RemoveAll(previous)
	}

	return nil
}

// stagingDir returns a fresh sibling staging path. A crash leaves at
// worst a recognizable leftover the next constructor sweeps.
func (i *Installer) stagingDir() string {
	var suffix [4]byte
	_, _ = rand.Read(suffix[:])
	return i.opts.InstallDir + ".staging." + hex.EncodeToString(suffix[:])
}

// sweep clears staging leftovers and settles an interrupted publish:
// an orphaned previous tree moves back when the install dir is gone.
func (i *Installer) sweep() {
	fs := filesystem.API()
	parent := filepath.Dir(i.opts.InstallDir)
	prefix := filepath.Base(i.opts.InstallDir) + ".staging."

	if entries, err := fs.ReadDir(parent); err == nil {
		for _, entry := range entries {
			if strings.HasPrefix(entry.Name(), prefix) {
				log.Debugf("removing stale staging dir %s", entry.Name())
				_ = fs.RemoveAll(filepath.Join(parent, entry.Name()))
			}
		}
	}

	previous := i.opts.InstallDir + ".previous"
	if exists, _ := fs.DirExists(previous); exists {
		if installed, _ := fs.DirExists(i.opts.InstallDir); installed {
			_ = fs.RemoveAll(previous)
		} else {
			log.Debugf("restoring interrupted engine publish")
			_ = filesystem.MoveDir(previous, i.opts.InstallDir)
		}
	}
}

// probe rebuilds the lifecycle snapshot from the install tree. A tree
// only counts as installed when its receipt and the primary library it
// names are both present.
func (i *Installer) probe() Status {
	receipt, err := readReceipt(i.opts.InstallDir)
	if err != nil || receipt.PrimaryLib == "" {
		return Status{State: StateNotInstalled}
	}

	exists, err := filesystem.API().Exists(filepath.Join(i.opts.InstallDir, "lib", receipt.PrimaryLib))
	if err != nil || !exists {
		return Status{State: StateNotInstalled}
	}

	return Status{State: StateInstalled}
}

// IsInstalled reports whether a published engine tree is present. The
// check is file-based so it stays truthful even after a failed
// reinstall attempt left the previous tree in place.
func (i *Installer) IsInstalled() bool {
	i.mu.Lock()
	installing := i.installing
	i.mu.Unlock()

	if installing {
		return false
	}
	return i.probe().State == StateInstalled
}

// IsReady reports whether the installed engine passes load verification.
func (i *Installer) IsReady() bool {
	if !i.IsInstalled() {
		return false
	}

	receipt, err := readReceipt(i.opts.InstallDir)
	if err != nil || receipt.PrimaryLib == "" {
		return false
	}

	primary := filepath.Join(i.opts.InstallDir, "lib", receipt.PrimaryLib)
	if err := i.opts.Loader.CanLoad(primary, i.opts.InstallDir); err != nil {
		log.Warnf("engine failed load verification: %s", err)
		return false
	}

	return true
}

// Enabled reports whether the engine is turned on in config,
// independent of whether it is installed.
func (i *Installer) Enabled() bool {
	return viper.GetBool(key.EngineEnabled)
}

// Status returns the lifecycle snapshot of the last observed or
// attempted install.
func (i *Installer) Status() Status {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// Uninstall removes the engine tree. Refused while an install is in flight.
func (i *Installer) Uninstall() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.installing {
		return ErrAlreadyInstalling
	}

	exists, _ := filesystem.API().DirExists(i.opts.InstallDir)
	if !exists {
		return ErrNotInstalled
	}

	if err := filesystem.API().RemoveAll(i.opts.InstallDir); err != nil {
		return err
	}

	i.status = Status{State: StateNotInstalled}
	return nil
}

// Receipt returns the manifest of the current install.
func (i *Installer) Receipt() (Receipt, error) {
	return readReceipt(i.opts.InstallDir)
}

// UpgradeAvailable compares the installed version against current
// metadata, returning the registry version and whether it is newer.
func (i *Installer) UpgradeAvailable(ctx context.Context) (string, bool, error) {
	receipt, err := readReceipt(i.opts.InstallDir)
	if err != nil {
		return "", false, err
	}

	formula, err := i.metadata.Resolve(ctx, receipt.Formula)
	if err != nil {
		return "", false, err
	}

	comp, err := version.Compare(formula.Versions.Stable, receipt.Version)
	if err != nil {
		return "", false, err
	}

	return formula.Versions.Stable, comp > 0, nil
}

func (i *Installer) emit(event Event) {
	if i.opts.Progress != nil {
		i.opts.Progress(event)
	}
}

func libraryNames(libDir string) []string {
	entries, err := filesystem.API().ReadDir(libDir)
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}

	return names
}
