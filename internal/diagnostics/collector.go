// Package diagnostics assembles the support snapshot a technician or a
// help desk pulls when sync misbehaves: device identity, storage use,
// connectivity, queue depths and the recent failure history.
package diagnostics

import (
	"time"

	"github.com/opslink-dev/fieldsync/internal/sync"
)

// DeviceInfo identifies the device and build.
type DeviceInfo struct {
	InstanceID string `json:"instanceId"`
	AppVersion string `json:"appVersion"`
	Platform   string `json:"platform"`
	Hostname   string `json:"hostname"`
}

// Connectivity is the current network view. CellGeneration is nil off
// cellular.
type Connectivity struct {
	Type           string    `json:"type"`
	Online         bool      `json:"online"`
	Reachable      bool      `json:"reachable"`
	CellGeneration *string   `json:"cellGeneration"`
	CheckedAt      time.Time `json:"checkedAt"`
	Detail         string    `json:"detail,omitempty"`
}

// StorageReport sums what sync keeps on disk.
type StorageReport struct {
	CacheBytes        int64  `json:"cacheBytes"`
	CacheDisplay      string `json:"cacheDisplay"`
	PersistentBytes   int64  `json:"persistentBytes"`
	PersistentDisplay string `json:"persistentDisplay"`
}

// DeviceInfoProvider supplies device identity.
type DeviceInfoProvider interface {
	DeviceInfo() DeviceInfo
}

// StorageInspector measures directory usage. Implementations return
// zero for unreadable paths; a broken disk probe must never break the
// snapshot.
type StorageInspector interface {
	DirSizeBytes(path string) int64
}

// ConnectivityProvider reports whether the backend is reachable.
// Subscribe delivers a notification whenever the reachability state
// flips; the channel is closed when the provider shuts down.
type ConnectivityProvider interface {
	Status() Connectivity
	Subscribe() <-chan Connectivity
}

// Snapshot is the full diagnostics payload.
type Snapshot struct {
	GeneratedAt         time.Time            `json:"generatedAt"`
	Device              DeviceInfo           `json:"device"`
	Connectivity        Connectivity         `json:"connectivity"`
	Storage             StorageReport        `json:"storage"`
	LastFullSync        *time.Time           `json:"lastFullSync"`
	LastFullSyncDisplay string               `json:"lastFullSyncDisplay"`
	RetryQueue          sync.RetryQueueStats `json:"retryQueue"`
	Uploads             sync.UploadStats     `json:"uploads"`
	Conflicts           sync.AuditStats      `json:"conflicts"`
	EscalatedConflicts  int                  `json:"escalatedConflicts"`
	RecentErrors        []sync.ErrorLogEntry `json:"recentErrors"`
}

// CollectorConfig names the directories measured in the storage report.
type CollectorConfig struct {
	CacheDir      string
	PersistentDir string
}

// Collector builds diagnostics snapshots from the live sync components.
type Collector struct {
	cfg     CollectorConfig
	device  DeviceInfoProvider
	storage StorageInspector
	network ConnectivityProvider

	audit   *sync.AuditLog
	errlog  *sync.ErrorLog
	retries *sync.RetryQueue
	uploads *sync.UploadTracker
	states  sync.StateStore

	nowFunc func() time.Time
}

// CollectorDeps bundles the collector's collaborators.
type CollectorDeps struct {
	Device  DeviceInfoProvider
	Storage StorageInspector
	Network ConnectivityProvider

	Audit   *sync.AuditLog
	ErrLog  *sync.ErrorLog
	Retries *sync.RetryQueue
	Uploads *sync.UploadTracker
	States  sync.StateStore
}

func NewCollector(cfg CollectorConfig, deps CollectorDeps) *Collector {
	return &Collector{
		cfg:     cfg,
		device:  deps.Device,
		storage: deps.Storage,
		network: deps.Network,
		audit:   deps.Audit,
		errlog:  deps.ErrLog,
		retries: deps.Retries,
		uploads: deps.Uploads,
		states:  deps.States,
		nowFunc: time.Now,
	}
}

// Collect assembles a snapshot. It never fails: unreadable inputs show
// up as zeros or empty sections.
func (c *Collector) Collect() Snapshot {
	now := c.nowFunc()

	cacheBytes := c.storage.DirSizeBytes(c.cfg.CacheDir)
	persistentBytes := c.storage.DirSizeBytes(c.cfg.PersistentDir)

	var lastFull *time.Time
	if c.states != nil {
		lastFull, _ = c.states.LastFullSync()
	}

	snap := Snapshot{
		GeneratedAt:  now,
		Device:       c.device.DeviceInfo(),
		Connectivity: c.network.Status(),
		Storage: StorageReport{
			CacheBytes:        cacheBytes,
			CacheDisplay:      FormatBytes(cacheBytes),
			PersistentBytes:   persistentBytes,
			PersistentDisplay: FormatBytes(persistentBytes),
		},
		LastFullSync:        lastFull,
		LastFullSyncDisplay: FormatRelativeTime(lastFull, now),
		RetryQueue:          c.retries.Stats(),
		Uploads:             c.uploads.Stats(),
		Conflicts:           c.audit.Stats(),
		RecentErrors:        c.errlog.Recent(0),
	}
	snap.EscalatedConflicts = snap.Conflicts.Escalated
	return snap
}
