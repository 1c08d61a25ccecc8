package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/yourusername/bgtrainer/pkg/trainer"
)

// Training job states.
const (
	JobRunning   = "running"
	JobDone      = "done"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// subscriberBuffer is the number of events a slow stream may lag behind
// before it misses events.
const subscriberBuffer = 64

// trainJob is a training run in the background. Its events are kept for
// late subscribers.
type trainJob struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	state  string
	err    string
	events []trainer.Event
	subs   map[chan trainer.Event]struct{}
}

func (j *trainJob) add(e trainer.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, e)
	for ch := range j.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (j *trainJob) finish(ctx context.Context, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case ctx.Err() != nil:
		j.state = JobCancelled
	case err != nil:
		j.state = JobFailed
		j.err = err.Error()
	default:
		j.state = JobDone
	}
	for ch := range j.subs {
		close(ch)
	}
	j.subs = nil
	close(j.done)
}

// subscribe returns the events so far and, while the job runs, a channel
// of the following ones. The channel is closed when the job ends.
func (j *trainJob) subscribe() ([]trainer.Event, chan trainer.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	past := append([]trainer.Event(nil), j.events...)
	if j.state != JobRunning {
		return past, nil
	}
	ch := make(chan trainer.Event, subscriberBuffer)
	j.subs[ch] = struct{}{}
	return past, ch
}

func (j *trainJob) unsubscribe(ch chan trainer.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.subs[ch]; ok {
		delete(j.subs, ch)
		close(ch)
	}
}

func (j *trainJob) status(withEvents bool) TrainJobResponse {
	j.mu.Lock()
	defer j.mu.Unlock()
	resp := TrainJobResponse{ID: j.id, State: j.state, Error: j.err}
	if withEvents {
		resp.Events = append(resp.Events, j.events...)
	}
	return resp
}

// jobRegistry owns the training jobs of a server.
type jobRegistry struct {
	mu   sync.Mutex
	seq  int
	byID map[string]*trainJob
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{byID: make(map[string]*trainJob)}
}

// start runs t in the background. release is called when the run ends.
func (r *jobRegistry) start(t *trainer.Trainer, release func()) *trainJob {
	ctx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.seq++
	j := &trainJob{
		id:     fmt.Sprintf("train-%d", r.seq),
		cancel: cancel,
		done:   make(chan struct{}),
		state:  JobRunning,
		subs:   make(map[chan trainer.Event]struct{}),
	}
	r.byID[j.id] = j
	r.mu.Unlock()

	t.OnEvent(j.add)
	go func() {
		defer release()
		defer cancel()
		err := t.Run(ctx)
		if err != nil {
			log.Warn().Err(err).Str("job", j.id).Msg("training job ended with error")
		}
		j.finish(ctx, err)
	}()
	log.Info().Str("job", j.id).Msg("training job started")
	return j
}

func (r *jobRegistry) get(id string) (*trainJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.byID[id]
	return j, ok
}

func (r *jobRegistry) running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, j := range r.byID {
		select {
		case <-j.done:
		default:
			n++
		}
	}
	return n
}

// stopAll cancels every job and waits for them until ctx ends.
func (r *jobRegistry) stopAll(ctx context.Context) error {
	r.mu.Lock()
	jobs := make([]*trainJob, 0, len(r.byID))
	for _, j := range r.byID {
		jobs = append(jobs, j)
	}
	r.mu.Unlock()

	for _, j := range jobs {
		j.cancel()
	}
	for _, j := range jobs {
		select {
		case <-j.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
