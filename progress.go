package ocrsweep

import (
	"time"

	"github.com/sasha-s/go-deadlock"
)

const (
	StateNotStarted  = "not_started"
	StateRasterizing = "rasterizing"
	StateSweeping    = "sweeping"
	StateDone        = "done"
	StateFailed      = "failed"
)

// ProgressStatus is a point in time copy of the sweep progress
type ProgressStatus struct {
	RunID        string    `json:"run_id"`
	State        string    `json:"state"`
	PdfPath      string    `json:"pdf_path"`
	TotalPages   int       `json:"total_pages"`
	TotalMethods int       `json:"total_methods"`
	MethodIndex  int       `json:"method_index"`
	Method       string    `json:"method,omitempty"`
	Page         int       `json:"page"`
	FailedPages  int       `json:"failed_pages"`
	Written      []string  `json:"written"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// SweepProgress is written by the sweep and read by the status handler
type SweepProgress struct {
	mu     deadlock.RWMutex
	status ProgressStatus
}

func NewSweepProgress() *SweepProgress {
	return &SweepProgress{status: ProgressStatus{State: StateNotStarted}}
}

func (p *SweepProgress) start(runID string, pdfPath string, totalMethods int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = ProgressStatus{
		RunID:        runID,
		State:        StateRasterizing,
		PdfPath:      pdfPath,
		TotalMethods: totalMethods,
		StartedAt:    time.Now(),
	}
}

func (p *SweepProgress) rasterized(totalPages int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.State = StateSweeping
	p.status.TotalPages = totalPages
}

func (p *SweepProgress) methodStarted(index int, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.MethodIndex = index
	p.status.Method = name
	p.status.Page = 0
}

func (p *SweepProgress) pageDone(page int, failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Page = page
	if failed {
		p.status.FailedPages++
	}
}

func (p *SweepProgress) methodWritten(outputFile string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Written = append(p.status.Written, outputFile)
}

func (p *SweepProgress) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.FinishedAt = time.Now()
	if err != nil {
		p.status.State = StateFailed
		p.status.Error = err.Error()
		return
	}
	p.status.State = StateDone
}

func (p *SweepProgress) Snapshot() ProgressStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snapshot := p.status
	snapshot.Written = append([]string{}, p.status.Written...)
	return snapshot
}
