package devserver

import (
	"sync"
	"time"

	"git.home.luguber.info/inful/assetbuilder/internal/pipeline"
)

// buildStatus tracks the outcome of the most recent pass for the status page
// and health endpoint.
type buildStatus struct {
	mu           sync.RWMutex
	lastError    error
	lastPassID   string
	lastFinished time.Time
	passes       int
	hasGoodBuild bool
}

func (bs *buildStatus) record(r *pipeline.Report, err error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.passes++
	bs.lastError = err
	if r != nil {
		bs.lastPassID = r.PassID
		bs.lastFinished = r.End
	}
	if err == nil {
		bs.hasGoodBuild = true
	}
}

type statusSnapshot struct {
	LastError    error
	LastPassID   string
	LastFinished time.Time
	Passes       int
	HasGoodBuild bool
}

func (bs *buildStatus) snapshot() statusSnapshot {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return statusSnapshot{
		LastError:    bs.lastError,
		LastPassID:   bs.lastPassID,
		LastFinished: bs.lastFinished,
		Passes:       bs.passes,
		HasGoodBuild: bs.hasGoodBuild,
	}
}
