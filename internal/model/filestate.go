package model

import "time"

// State is a path's position in the four-state pipeline lifecycle.
type State string

const (
	StateDiscovered State = "discovered"
	StateLight      State = "light"
	StateBackground State = "background"
	StateDone       State = "done"
)

// FileState is StateTracker's per-path record. Exactly one pipeline stage
// mutates a given FileState at a time; StateTracker serializes access.
type FileState struct {
	FilePath    string
	State       State
	Hash        string // midhash256 once known
	VirtualPath string
	Error       string
	RetryCount  int

	DiscoveredAt time.Time
	LightStart   time.Time
	LightEnd     time.Time
	BGStart      time.Time
	BGEnd        time.Time
	LastRetryAt  time.Time

	LightDuration time.Duration
	TotalDuration time.Duration
}

// DuplicateGroup is one cluster found by DuplicateDetector: a key (a hash
// value for the hash pass, a normalized virtual path for the title pass),
// an alphabetically ordered member list, and the canonical virtual path.
type DuplicateGroup struct {
	Key         string
	Files       []string // source paths, ordered alphabetically
	VirtualPath string
}

// PluginQueueClass selects which scheduler queue a PluginTask runs on.
type PluginQueueClass string

const (
	PluginQueueFast       PluginQueueClass = "fast"
	PluginQueueBackground PluginQueueClass = "background"
)

// PluginStatus mirrors FileState's lifecycle but scoped to one plugin run.
type PluginStatus string

const (
	PluginPending  PluginStatus = "pending"
	PluginRunning  PluginStatus = "running"
	PluginComplete PluginStatus = "complete"
	PluginFailed   PluginStatus = "failed"
)

// PluginTask is identified by (FileHash, PluginID); DependsOn names other
// plugin ids that must complete first for the same file.
type PluginTask struct {
	FileHash     string
	PluginID     string
	QueueClass   PluginQueueClass
	DependsOn    []string
	Status       PluginStatus
	EstimateCost float64
}
