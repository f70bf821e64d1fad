// Package bottle provisions the external playback engine from prebuilt binary bottles.
//
// A bottle is a gzipped tar of a formula's build published through a
// container registry. Provisioning resolves the formula's metadata and
// its transitive dependencies, downloads every bottle, flattens the
// shared libraries into a staging tree, rewrites their embedded load
// paths to the final install location and publishes the tree with a
// single directory swap.
package bottle

import "errors"

// Pipeline Failure Sentinels - each maps to the install stage that produced it.
var (
	// ErrMetadataUnavailable indicates the formula metadata endpoint failed or returned garbage.
	ErrMetadataUnavailable = errors.New("formula metadata unavailable")

	// ErrNoCompatibleBottle indicates no published bottle matches this platform.
	ErrNoCompatibleBottle = errors.New("no compatible bottle published")

	// ErrAuthFailed indicates the registry token exchange was rejected.
	ErrAuthFailed = errors.New("registry authentication failed")

	// ErrDownloadFailed indicates the bottle archive could not be fetched.
	ErrDownloadFailed = errors.New("bottle download failed")

	// ErrExtractFailed indicates the archive was unreadable or carried no usable libraries.
	ErrExtractFailed = errors.New("bottle extraction failed")

	// ErrPatchFailed indicates a library's load commands could not be rewritten.
	ErrPatchFailed = errors.New("library patching failed")
)

// Lifecycle Sentinels - returned before the pipeline starts.
var (
	// ErrAlreadyInstalling rejects a second install while one is in flight.
	ErrAlreadyInstalling = errors.New("an engine install is already in flight")

	// ErrAlreadyInstalled rejects a redundant install without the force flag.
	ErrAlreadyInstalled = errors.New("engine is already installed")

	// ErrNotInstalled indicates no engine tree is present.
	ErrNotInstalled = errors.New("engine is not installed")
)

// errNotMachO marks files the patcher cannot operate on; they are
// skipped with a warning instead of failing the install.
var errNotMachO = errors.New("not a 64-bit Mach-O file")
