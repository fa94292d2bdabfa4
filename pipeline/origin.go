package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/nullstream/packager/media"
	"github.com/nullstream/packager/status"
)

// Source is the minimal contract an input collaborator (a demuxer, a test
// fixture generator) must satisfy to drive an OriginHandler. Next returns
// one event at a time; it returns an error wrapping status.EndOfStream
// (status.ErrEndOfStream) once input is exhausted, which is not treated as
// a failure.
type Source interface {
	Next() (*media.StreamData, error)
}

// OriginHandler is the pipeline's single producer: a 0-in/1-out handler
// that pulls events from a Source and dispatches them downstream. Run
// blocks the caller's goroutine and drives the whole downstream graph;
// Cancel is safe to call concurrently from another goroutine and causes
// the next iteration of the producer loop to stop and flush.
type OriginHandler struct {
	BaseHandler
	source    Source
	cancelled atomic.Bool
}

// NewOriginHandler creates an OriginHandler reading from source.
func NewOriginHandler(source Source) *OriginHandler {
	o := &OriginHandler{
		BaseHandler: NewBaseHandler(0, 1),
		source:      source,
	}
	o.Impl = o
	return o
}

// InitializeInternal implements the concrete-handler hook.
func (o *OriginHandler) InitializeInternal() error { return nil }

// ProcessEvent is never called on an origin handler: it has no upstream.
func (o *OriginHandler) ProcessEvent(*media.StreamData) error {
	return status.New(status.Internal, "OriginHandler has no input; Process should never be called")
}

// OnFlushRequest is never called on an origin handler for the same reason.
func (o *OriginHandler) OnFlushRequest(int) error {
	return status.New(status.Internal, "OriginHandler has no input; FlushInput should never be called")
}

// Cancel requests termination of a running Run call. It is non-blocking
// and safe to call from any goroutine, any number of times.
func (o *OriginHandler) Cancel() {
	o.cancelled.Store(true)
}

// Run drives the graph by repeatedly pulling events from the Source and
// dispatching them to output 0, until the Source reports end-of-stream,
// ctx is cancelled, Cancel is called, or a downstream handler returns a
// non-OK status. It returns the cumulative pipeline status: nil on a clean
// end-of-stream, status.ErrCancelled on cancellation, or the first
// downstream/Source error otherwise.
func (o *OriginHandler) Run(ctx context.Context) error {
	if err := o.Initialize(); err != nil {
		return err
	}
	for {
		if o.cancelled.Load() {
			_ = o.DispatchFlush(0)
			return status.ErrCancelled
		}
		select {
		case <-ctx.Done():
			_ = o.DispatchFlush(0)
			return status.ErrCancelled
		default:
		}

		data, err := o.source.Next()
		if err != nil {
			if status.IsEndOfStream(err) {
				return o.DispatchFlush(0)
			}
			return err
		}
		if err := o.Dispatch(0, data); err != nil {
			return err
		}
	}
}
