// Package constant defines immutable application-level identifiers and configuration defaults.
package constant

const (
	// Porthole is the canonical application identifier used for filesystem paths and CLI branding.
	Porthole = "porthole"

	// Version is the current application semantic version string.
	Version = "0.1.0"

	// UserAgent is the default HTTP User-Agent string used for network requests to remote manifest providers.
	UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Bottle Registry Endpoints - these constants identify the public binary-bottle distribution channel.
const (
	// FormulaAPIBase is the root of the formula metadata API.
	FormulaAPIBase = "https://formulae.brew.sh/api/formula"

	// RegistryTokenURL is the anonymous token endpoint of the bottle container registry.
	RegistryTokenURL = "https://ghcr.io/token"

	// RegistryNamespace is the repository namespace bottles are published under.
	RegistryNamespace = "homebrew/core"
)

// Lua Translator Contract - global functions a translator module may define.
const (
	// TranslateFn is the required entry point turning provider bytes into a canonical manifest.
	TranslateFn = "Translate"

	// MatchesFn is the optional URL predicate used to auto-select a translator.
	MatchesFn = "Matches"
)
