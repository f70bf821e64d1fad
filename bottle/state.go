// Package bottle provisions the external playback engine from prebuilt binary bottles.
package bottle

// State is a lifecycle phase of the engine installation.
//
// Transitions are monotonic per attempt: NotInstalled or Installed moves
// to Installing, which settles on exactly one of Installed or Failed.
type State string

const (
	StateNotInstalled State = "not installed"
	StateInstalling   State = "installing"
	StateInstalled    State = "installed"
	StateFailed       State = "failed"
)

// Status is a point-in-time lifecycle snapshot.
//
// The in-memory status is a cache over the install tree: it is rebuilt
// at construction by probing the install directory, so it survives
// restarts without separate persistence.
type Status struct {
	// State of the installation.
	State State `json:"state"`
	// Reason carries the failure cause while State is Failed.
	Reason string `json:"reason,omitempty"`
}
