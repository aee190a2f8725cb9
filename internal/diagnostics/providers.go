package diagnostics

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"runtime"
	gosync "sync"
	"time"
)

// AppVersion is stamped at build time via -ldflags.
var AppVersion = "dev"

// HostDevice reports identity from the running process.
type HostDevice struct {
	InstanceID string
}

func (h *HostDevice) DeviceInfo() DeviceInfo {
	hostname, _ := os.Hostname()
	return DeviceInfo{
		InstanceID: h.InstanceID,
		AppVersion: AppVersion,
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
		Hostname:   hostname,
	}
}

// DiskInspector walks a directory tree and sums file sizes. Unreadable
// paths count as zero.
type DiskInspector struct{}

func (DiskInspector) DirSizeBytes(path string) int64 {
	if path == "" {
		return 0
	}
	var total int64
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		log.Printf("⚠️ Storage probe failed for %s: %v", path, err)
		return 0
	}
	return total
}

// Pinger is the slice of the backend client connectivity needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BackendProbe checks connectivity by pinging the backend with a short
// timeout. With an Interval set it also polls in the background and
// notifies subscribers when reachability flips.
type BackendProbe struct {
	Remote   Pinger
	Timeout  time.Duration
	Interval time.Duration

	mu       gosync.Mutex
	subs     []chan Connectivity
	lastSeen *bool
	stopCh   chan struct{}
}

func (p *BackendProbe) Status() Connectivity {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// The server is wired, so the network type is always ethernet and
	// never cellular. A mobile build swaps in its own provider.
	status := Connectivity{Type: "ethernet", CheckedAt: time.Now()}
	if err := p.Remote.Ping(ctx); err != nil {
		status.Detail = err.Error()
		return status
	}
	status.Online = true
	status.Reachable = true
	return status
}

// Subscribe registers for reachability-change notifications and starts
// the polling loop on first use.
func (p *BackendProbe) Subscribe() <-chan Connectivity {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan Connectivity, 1)
	p.subs = append(p.subs, ch)
	if p.stopCh == nil {
		p.stopCh = make(chan struct{})
		go p.watch()
	}
	return ch
}

// Close stops the polling loop and closes all subscriber channels.
func (p *BackendProbe) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
	for _, ch := range p.subs {
		close(ch)
	}
	p.subs = nil
}

func (p *BackendProbe) watch() {
	interval := p.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.mu.Lock()
	stop := p.stopCh
	p.mu.Unlock()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			status := p.Status()
			p.mu.Lock()
			flipped := p.lastSeen == nil || *p.lastSeen != status.Reachable
			reachable := status.Reachable
			p.lastSeen = &reachable
			if flipped {
				if status.Reachable {
					log.Println("📶 Backend reachable again")
				} else {
					log.Println("📴 Backend unreachable")
				}
				for _, ch := range p.subs {
					select {
					case ch <- status:
					default:
					}
				}
			}
			p.mu.Unlock()
		}
	}
}
