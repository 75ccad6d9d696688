package classify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/atmostrack/atmostrack/internal/live"
	"github.com/atmostrack/atmostrack/internal/metrics"
	"github.com/atmostrack/atmostrack/internal/models"
)

// State is the per-reading enrichment lifecycle:
// Pending -> {Enriched, Skipped, TimedOut}.
type State string

const (
	StatePending  State = "pending"
	StateSkipped  State = "skipped"
	StateEnriched State = "enriched"
	StateTimedOut State = "timed_out"
)

// DefaultTimeout bounds one enrichment call. Past it the reading stays
// unclassified permanently; the next qualifying reading produces a fresh
// call anyway.
const DefaultTimeout = 5 * time.Second

// Classifier is the external model boundary.
type Classifier interface {
	Classify(ctx context.Context, req Request) (*models.ClassificationResult, error)
}

// ReadingUpdater persists a classification patch. May be nil when the
// service runs without a database.
type ReadingUpdater interface {
	UpdateClassification(readingID string, res models.ClassificationResult) error
}

// Task is the completion handle for one reading's enrichment. Skipped
// tasks are born terminal.
type Task struct {
	done chan struct{}

	mu    sync.Mutex
	state State
}

func newTask(state State) *Task {
	return &Task{done: make(chan struct{}), state: state}
}

// Done is closed once the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) finish(state State) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
	close(t.done)
}

// Gateway runs fire-and-forget enrichment calls. Calls for different
// readings run concurrently and are never coalesced or cancelled by later
// readings; each resolves independently and patches its own reading by
// identity.
type Gateway struct {
	classifier Classifier
	live       *live.Store
	db         ReadingUpdater
	timeout    time.Duration
	wg         sync.WaitGroup
}

func NewGateway(classifier Classifier, liveStore *live.Store, db ReadingUpdater, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{
		classifier: classifier,
		live:       liveStore,
		db:         db,
		timeout:    timeout,
	}
}

// Enrich submits one reading's feature vector. A partial vector never
// triggers an external call: the task returns already Skipped. Otherwise
// the call runs off the ingestion path and the returned task completes
// when it resolves.
func (g *Gateway) Enrich(reading models.Reading, fv models.FeatureVector) *Task {
	if g.classifier == nil || !fv.Complete() {
		task := newTask(StateSkipped)
		close(task.done)
		metrics.ClassifyCallsTotal.WithLabelValues(string(StateSkipped)).Inc()
		return task
	}

	task := newTask(StatePending)
	req := RequestFromFeatures(fv)

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.run(task, reading, req)
	}()

	return task
}

func (g *Gateway) run(task *Task, reading models.Reading, req Request) {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	start := time.Now()
	res, err := g.classifier.Classify(ctx, req)
	metrics.ClassifyLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		log.Printf("classify: %s reading %s: %v", reading.DeviceID, reading.ID, err)
		metrics.ClassifyCallsTotal.WithLabelValues(string(StateTimedOut)).Inc()
		task.finish(StateTimedOut)
		return
	}

	if _, ok := g.live.ApplyClassification(reading.DeviceID, reading.ID, *res); !ok {
		// Resolved after the reading left the live window; nothing to
		// re-broadcast.
		log.Printf("classify: %s reading %s resolved after eviction", reading.DeviceID, reading.ID)
	}

	if g.db != nil {
		if err := g.db.UpdateClassification(reading.ID, *res); err != nil {
			log.Printf("classify: persist %s: %v", reading.ID, err)
		}
	}

	metrics.ClassifyCallsTotal.WithLabelValues(string(StateEnriched)).Inc()
	task.finish(StateEnriched)
}

// Wait blocks until all in-flight enrichment calls resolve. Used on
// shutdown and in tests.
func (g *Gateway) Wait() {
	g.wg.Wait()
}
