package transducer

import (
	"context"
	"errors"
	"sync"

	"github.com/banshee-data/echomap/internal/sonar"
)

// ErrReplayExhausted is returned once every stored recording was played.
var ErrReplayExhausted = errors.New("transducer: replay exhausted")

// Replay answers probes with stored recordings, in order. Feeding it the
// recordings of a session kept with KeepRecordings re-ranges that scan
// without hardware.
type Replay struct {
	mu         sync.Mutex
	recordings []sonar.Recording
	next       int
}

// NewReplay copies recs.
func NewReplay(recs []sonar.Recording) *Replay {
	cp := make([]sonar.Recording, len(recs))
	for i, rec := range recs {
		cp[i] = append(sonar.Recording(nil), rec...)
	}
	return &Replay{recordings: cp}
}

// PlayAndRecord ignores the probe and returns the next recording.
func (r *Replay) PlayAndRecord(ctx context.Context, _ sonar.Signal) (sonar.Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next >= len(r.recordings) {
		return nil, ErrReplayExhausted
	}
	rec := r.recordings[r.next]
	r.next++
	out := make(sonar.Recording, len(rec))
	copy(out, rec)
	return out, nil
}

// Remaining is the number of recordings not yet played.
func (r *Replay) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recordings) - r.next
}
