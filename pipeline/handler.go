// Package pipeline implements the media handler framework: typed event
// dispatch between handlers, graph wiring, and flush propagation. It is the
// backbone every other packaging component (chunking, encryption, muxing)
// is built on top of.
package pipeline

import (
	"fmt"

	"github.com/nullstream/packager/media"
	"github.com/nullstream/packager/status"
)

// Handler is the single polymorphic interface every pipeline node
// implements. There are three processing shapes for a Handler: 1-in/1-out
// (transformer), N-in/N-out (bulk processor, output i derives from input
// i), and 1-in/N-out (fan-out, see Replicator). Initialize also accepts a
// 0-in/1-out origin (see OriginHandler) and a handler declaring -1 inputs
// (unbounded fan-in, any output count); it rejects every other shape.
type Handler interface {
	// NumInputStreams reports how many upstream connections this handler
	// accepts, or -1 if it accepts an unbounded number (sized by the first
	// caller of Connect from upstream).
	NumInputStreams() int

	// NumOutputStreams reports how many downstream output slots this
	// handler exposes.
	NumOutputStreams() int

	// Connect wires this handler's output at outputIndex to a downstream
	// handler's input at downstreamInputIndex.
	Connect(outputIndex int, downstream Handler, downstreamInputIndex int) error

	// Initialize recursively initializes this handler and every reachable
	// downstream handler exactly once. Re-invocation is idempotent.
	Initialize() error

	// Process handles one incoming StreamData event. data.StreamIndex is
	// an input index; implementations dispatch processed output with the
	// index rewritten to the relevant output index. Implementations must
	// never mutate data in place before handing it to more than one
	// downstream output.
	Process(data *media.StreamData) error

	// FlushInput signals that no further events will arrive on the given
	// input index. Implementations must flush any state derived from that
	// input and propagate FlushInput to every output that derives from it.
	FlushInput(inputIndex int) error
}

// outputSlot is one entry in a handler's output table.
type outputSlot struct {
	connected  bool
	downstream Handler
	inputIndex int
}

// BaseHandler provides the graph-wiring, initialization-tracking, and
// dispatch machinery shared by every concrete Handler. Concrete handlers
// embed BaseHandler and implement InitializeInternal, ProcessEvent, and
// OnFlushRequest; BaseHandler's Connect/Initialize/Process/FlushInput
// methods handle the rest.
type BaseHandler struct {
	numInputs  int
	outputs    []outputSlot
	initDone   bool

	// Impl is the concrete handler embedding this BaseHandler. It must be
	// set (normally in the concrete type's constructor) before use.
	Impl interface {
		InitializeInternal() error
		ProcessEvent(data *media.StreamData) error
		OnFlushRequest(inputIndex int) error
	}
}

// NewBaseHandler constructs a BaseHandler with the given input/output
// stream counts. numInputs of -1 means "accepts any index presented to it"
// (used by handlers with unbounded fan-in, none of which exist in this
// package today but kept for forward compatibility with multi-input
// muxers).
func NewBaseHandler(numInputs, numOutputs int) BaseHandler {
	return BaseHandler{
		numInputs: numInputs,
		outputs:   make([]outputSlot, numOutputs),
	}
}

// NumInputStreams implements Handler.
func (h *BaseHandler) NumInputStreams() int { return h.numInputs }

// NumOutputStreams implements Handler.
func (h *BaseHandler) NumOutputStreams() int { return len(h.outputs) }

// Connect implements Handler.
func (h *BaseHandler) Connect(outputIndex int, downstream Handler, downstreamInputIndex int) error {
	if outputIndex < 0 || outputIndex >= len(h.outputs) {
		return status.Newf(status.InvalidArgument, "output index %d out of range [0,%d)", outputIndex, len(h.outputs))
	}
	if h.outputs[outputIndex].connected {
		return status.Newf(status.InvalidArgument, "output index %d already connected", outputIndex)
	}
	h.outputs[outputIndex] = outputSlot{connected: true, downstream: downstream, inputIndex: downstreamInputIndex}
	return nil
}

// Initialize implements Handler. It validates this handler's graph shape,
// runs the concrete handler's own initialization exactly once, then
// recurses into every connected downstream handler.
func (h *BaseHandler) Initialize() error {
	if h.initDone {
		return nil
	}
	if err := h.validateShape(); err != nil {
		return err
	}
	if h.Impl == nil {
		return status.New(status.Internal, "BaseHandler.Impl not set")
	}
	if err := h.Impl.InitializeInternal(); err != nil {
		return err
	}
	h.initDone = true
	for _, out := range h.outputs {
		if !out.connected {
			continue
		}
		if err := out.downstream.Initialize(); err != nil {
			return err
		}
	}
	return nil
}

// validateShape enforces the allowed topologies described on Handler.
func (h *BaseHandler) validateShape() error {
	n := h.numInputs
	m := len(h.outputs)
	switch {
	case n == 0 && m == 1: // origin (see OriginHandler)
	case n == 1 && m == 1: // transformer
	case n == 1 && m >= 1: // fan-out (replicator)
	case n >= 2 && n == m: // bulk processor, 1:1 index correspondence
	case n == -1: // unbounded fan-in, any output count
	default:
		return status.Newf(status.InvalidArgument, "unsupported handler shape: %d inputs, %d outputs", n, m)
	}
	return nil
}

// Process implements Handler by delegating to the concrete handler's
// ProcessEvent.
func (h *BaseHandler) Process(data *media.StreamData) error {
	if h.Impl == nil {
		return status.New(status.Internal, "BaseHandler.Impl not set")
	}
	return h.Impl.ProcessEvent(data)
}

// FlushInput implements Handler by delegating to the concrete handler's
// OnFlushRequest.
func (h *BaseHandler) FlushInput(inputIndex int) error {
	if h.Impl == nil {
		return status.New(status.Internal, "BaseHandler.Impl not set")
	}
	return h.Impl.OnFlushRequest(inputIndex)
}

// Dispatch sends data to the downstream handler connected at
// data.StreamIndex (interpreted as an output index), rewriting the index
// to that downstream handler's input index. It is a no-op, not an error,
// if nothing is connected at that output (a handler may have unused
// outputs, e.g. an encryption handler with fewer encrypted streams than
// output slots would never happen in practice, but muxers with optional
// outputs do occur).
func (h *BaseHandler) Dispatch(outputIndex int, data *media.StreamData) error {
	if outputIndex < 0 || outputIndex >= len(h.outputs) {
		return status.Newf(status.Internal, "dispatch: output index %d out of range", outputIndex)
	}
	out := h.outputs[outputIndex]
	if !out.connected {
		return nil
	}
	return out.downstream.Process(data.WithStreamIndex(out.inputIndex))
}

// DispatchFlush propagates FlushInput to the downstream handler connected
// at outputIndex.
func (h *BaseHandler) DispatchFlush(outputIndex int) error {
	if outputIndex < 0 || outputIndex >= len(h.outputs) {
		return status.Newf(status.Internal, "dispatch flush: output index %d out of range", outputIndex)
	}
	out := h.outputs[outputIndex]
	if !out.connected {
		return nil
	}
	return out.downstream.FlushInput(out.inputIndex)
}

// Chain connects a list of handlers in sequence: Chain([a, b, c]) is
// equivalent to a.Connect(0, b, 0) followed by b.Connect(0, c, 0).
func Chain(handlers ...Handler) error {
	for i := 0; i+1 < len(handlers); i++ {
		if err := handlers[i].Connect(0, handlers[i+1], 0); err != nil {
			return fmt.Errorf("chaining handler %d to %d: %w", i, i+1, err)
		}
	}
	return nil
}
