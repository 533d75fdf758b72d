package build

import (
	"sync"
	"time"

	"github.com/conneroisu/vei/internal/monitoring"
)

// BuildMetrics tracks build performance of one session
type BuildMetrics struct {
	TotalBuilds       int64
	SuccessfulBuilds  int64
	FailedBuilds      int64
	FullBuilds        int64
	IncrementalBuilds int64
	AverageDuration   time.Duration
	TotalDuration     time.Duration
	LastError         string
	LastBuild         time.Time
	mutex             sync.RWMutex
}

// NewBuildMetrics creates a new build metrics tracker
func NewBuildMetrics() *BuildMetrics {
	return &BuildMetrics{}
}

// RecordBuild records a build in the metrics
func (bm *BuildMetrics) RecordBuild(kind monitoring.BuildKind, duration time.Duration, err error) {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.TotalBuilds++
	bm.TotalDuration += duration
	bm.LastBuild = time.Now()

	if kind == monitoring.BuildIncremental {
		bm.IncrementalBuilds++
	} else {
		bm.FullBuilds++
	}

	if err != nil {
		bm.FailedBuilds++
		bm.LastError = err.Error()
	} else {
		bm.SuccessfulBuilds++
		bm.LastError = ""
	}

	bm.AverageDuration = bm.TotalDuration / time.Duration(bm.TotalBuilds)
}

// GetSnapshot returns a snapshot of current metrics
func (bm *BuildMetrics) GetSnapshot() BuildMetrics {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()
	// Return a copy without the mutex to avoid lock copying issues
	return BuildMetrics{
		TotalBuilds:       bm.TotalBuilds,
		SuccessfulBuilds:  bm.SuccessfulBuilds,
		FailedBuilds:      bm.FailedBuilds,
		FullBuilds:        bm.FullBuilds,
		IncrementalBuilds: bm.IncrementalBuilds,
		AverageDuration:   bm.AverageDuration,
		TotalDuration:     bm.TotalDuration,
		LastError:         bm.LastError,
		LastBuild:         bm.LastBuild,
	}
}

// GetSuccessRate returns the success rate as a percentage
func (bm *BuildMetrics) GetSuccessRate() float64 {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()

	if bm.TotalBuilds == 0 {
		return 0.0
	}

	return float64(bm.SuccessfulBuilds) / float64(bm.TotalBuilds) * 100.0
}
