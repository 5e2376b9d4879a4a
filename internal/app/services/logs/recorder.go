// Package logs persists per-request execution records without ever failing
// the request that produced them.
package logs

import (
	"context"
	"sync"
	"time"

	"github.com/runlet-dev/runlet/internal/app/domain/execution"
	"github.com/runlet-dev/runlet/internal/app/storage"
	"github.com/runlet-dev/runlet/pkg/logger"
)

const writeTimeout = 5 * time.Second

// Recorder accepts records from the pipeline and writes them to the store on
// a background worker. A full queue drops the record rather than blocking a
// request.
type Recorder struct {
	store storage.ExecutionLogStore
	log   *logger.Logger

	queue chan execution.Record
	done  chan struct{}
	wg    sync.WaitGroup
}

// NewRecorder constructs a recorder with the given queue depth.
func NewRecorder(store storage.ExecutionLogStore, depth int, log *logger.Logger) *Recorder {
	if depth <= 0 {
		depth = 256
	}
	if log == nil {
		log = logger.NewDefault("logs")
	}
	return &Recorder{
		store: store,
		log:   log,
		queue: make(chan execution.Record, depth),
		done:  make(chan struct{}),
	}
}

// Name implements system.Service.
func (r *Recorder) Name() string { return "execution-logs" }

// Start launches the background writer.
func (r *Recorder) Start(context.Context) error {
	r.wg.Add(1)
	go r.run()
	return nil
}

// Stop drains the queue and stops the writer.
func (r *Recorder) Stop(context.Context) error {
	close(r.done)
	r.wg.Wait()
	return nil
}

// Record enqueues a record. It never blocks and never returns an error; a
// logging failure must not fail the request.
func (r *Recorder) Record(rec execution.Record) {
	select {
	case r.queue <- rec:
	default:
		r.log.WithField("route_id", rec.RouteID).Warn("execution log queue full; dropping record")
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for {
		select {
		case rec := <-r.queue:
			r.persist(rec)
		case <-r.done:
			// Drain whatever is left before exiting.
			for {
				select {
				case rec := <-r.queue:
					r.persist(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) persist(rec execution.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err := r.store.CreateRecord(ctx, rec); err != nil {
		r.log.WithError(err).WithField("route_id", rec.RouteID).Warn("persist execution record")
	}
}

// List returns recent records, newest first.
func (r *Recorder) List(ctx context.Context, routeID string, limit int) ([]execution.Record, error) {
	return r.store.ListRecords(ctx, routeID, limit)
}
