package pipeline

import "github.com/nullstream/packager/media"

// Replicator is the single-input, N-output fan-out handler (graph shape 3
// on Handler). Every event received on its one input is dispatched to
// every connected output in order, addressed at that output's own index.
// Events are not deep-copied; downstream handlers must treat the shared
// MediaSample/TextSample payloads as read-only.
type Replicator struct {
	BaseHandler
}

// NewReplicator creates a Replicator with the given number of output
// slots. Outputs are connected individually via Connect after
// construction.
func NewReplicator(numOutputs int) *Replicator {
	r := &Replicator{BaseHandler: NewBaseHandler(1, numOutputs)}
	r.Impl = r
	return r
}

// InitializeInternal implements the concrete-handler hook; the replicator
// carries no state of its own.
func (r *Replicator) InitializeInternal() error { return nil }

// ProcessEvent fans data out to every connected output.
func (r *Replicator) ProcessEvent(data *media.StreamData) error {
	for i := 0; i < r.NumOutputStreams(); i++ {
		if err := r.Dispatch(i, data); err != nil {
			return err
		}
	}
	return nil
}

// OnFlushRequest propagates the flush to every connected output, since
// every output derives from the replicator's single input.
func (r *Replicator) OnFlushRequest(inputIndex int) error {
	for i := 0; i < r.NumOutputStreams(); i++ {
		if err := r.DispatchFlush(i); err != nil {
			return err
		}
	}
	return nil
}
