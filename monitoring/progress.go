package monitoring

import (
	"sync"
	"time"
)

// A ProgressBar is a tracker of the progress
type ProgressBar struct {
	sync.Mutex
	ID        string
	Name      string
	StartTime time.Time
	Total     uint64
	Finished  uint64
}

type progressBarRsp struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Total     uint64    `json:"total"`
	Finished  uint64    `json:"finished"`
}

// IncrementFinished add a certain amount to finished element.
func (b *ProgressBar) IncrementFinished(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.Finished += amount
}

// Done tells if every element is finished.
func (b *ProgressBar) Done() bool {
	b.Lock()
	defer b.Unlock()

	return b.Finished >= b.Total
}

func (b *ProgressBar) snapshot() progressBarRsp {
	b.Lock()
	defer b.Unlock()

	return progressBarRsp{
		ID:        b.ID,
		Name:      b.Name,
		StartTime: b.StartTime,
		Total:     b.Total,
		Finished:  b.Finished,
	}
}
