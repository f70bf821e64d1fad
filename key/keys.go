// Package key defines the canonical set of configuration identifiers used for centralized settings management.
package key

// DefinedFieldsCount represents the total cardinality of the application configuration schema.
const DefinedFieldsCount = 15

// Native Runtime Engine - these keys govern the on-demand provisioned playback engine.
const (
	EngineEnabled     = "engine.enabled"
	EngineFormula     = "engine.formula"
	EngineAutoInstall = "engine.auto_install"
)

// Stream Resolution - these keys configure how remote manifests are resolved into playable streams.
const (
	ResolverPreferCompatible = "resolver.prefer_compatible"
	ResolverPreferredQuality = "resolver.preferred_quality"
	ResolverCacheTTLMinutes  = "resolver.cache_ttl_minutes"
)

// Network Transport - these keys tune the HTTP client shared by the installer and the resolver.
const (
	NetworkRetries        = "network.retries"
	NetworkTimeoutSeconds = "network.timeout_seconds"
)

// Media Playback - these keys maintain the configuration for external video players.
const (
	PlayerExternal = "player.external"
)

// Iconography - these keys manage the visual rendering of UI symbols.
const (
	IconsVariant = "icons.variant"
)

// Logging Infrastructure - these keys manage the application's internal diagnostics and auditing system.
const (
	LogsWrite = "logs.write"
	LogsLevel = "logs.level"
	LogsJson  = "logs.json"
)

// CLI Execution Environment - these flags and settings govern general CLI behavior.
const (
	CliColored      = "cli.colored"
	CliVersionCheck = "cli.version_check"
)
