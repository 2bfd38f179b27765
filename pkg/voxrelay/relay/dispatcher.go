package relay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/voxrelay/voxrelay/pkg/voxrelay/channels"
)

// ProcessFunc handles one relevant message. It must not panic; errors are
// handled (and swallowed) inside the handler itself.
type ProcessFunc func(ctx context.Context, channelID string, msg *channels.IncomingMessage)

// Dispatcher owns one logical queue and at most one worker per channel.
//
// A single mutex guards the queue map; the presence of a map entry IS the
// worker-active flag, so the "is a worker running" check and the queue
// insertion are one atomic step. A worker drains its queue in batches —
// each iteration atomically takes the entire pending slice — and removes the
// channel's entry when a take comes back empty, returning the channel to
// idle. Messages that arrive mid-batch accumulate for the next iteration.
type Dispatcher struct {
	mu     sync.Mutex
	queues map[string][]*channels.IncomingMessage

	filter  *Filter
	process ProcessFunc
	logger  *slog.Logger

	// wg tracks live workers for Drain.
	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given filter and handler.
func NewDispatcher(filter *Filter, process ProcessFunc, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		queues:  make(map[string][]*channels.IncomingMessage),
		filter:  filter,
		process: process,
		logger:  logger.With("component", "dispatcher"),
	}
}

// Enqueue appends a message to its channel's queue and starts a worker if
// none is running. Never blocks on processing.
func (d *Dispatcher) Enqueue(ctx context.Context, msg *channels.IncomingMessage) {
	channelID := msg.ChannelID

	d.mu.Lock()
	pending, active := d.queues[channelID]
	d.queues[channelID] = append(pending, msg)
	if !active {
		d.wg.Add(1)
		go d.worker(ctx, channelID)
	}
	d.mu.Unlock()
}

// ActiveChannels returns the number of channels with a running worker.
func (d *Dispatcher) ActiveChannels() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

// Drain blocks until every running worker has finished its current queue.
// New enqueues during Drain still start workers; callers stop the inbound
// feed first.
func (d *Dispatcher) Drain() {
	d.wg.Wait()
}

// worker drains one channel's queue. Batches are taken whole: replies within
// a channel follow batch arrival order, and only one worker (hence at most
// one in-flight completion) exists per channel at any instant.
func (d *Dispatcher) worker(ctx context.Context, channelID string) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		batch := d.queues[channelID]
		if len(batch) == 0 {
			// Drained: drop the channel state entirely. The next enqueue
			// recreates it and starts a fresh worker.
			delete(d.queues, channelID)
			d.mu.Unlock()
			return
		}
		d.queues[channelID] = nil
		d.mu.Unlock()

		d.processBatch(ctx, channelID, batch)
	}
}

// processBatch filters the batch and processes relevant messages strictly
// sequentially. A failure inside process is isolated per message by the
// handler; nothing here aborts the batch or the worker.
func (d *Dispatcher) processBatch(ctx context.Context, channelID string, batch []*channels.IncomingMessage) {
	relevant := batch[:0]
	for _, msg := range batch {
		if d.filter.Relevant(msg) {
			relevant = append(relevant, msg)
		}
	}
	if len(relevant) == 0 {
		d.logger.Debug("no relevant messages in batch", "channel", channelID, "batch_size", len(batch))
		return
	}

	for _, msg := range relevant {
		if ctx.Err() != nil {
			return
		}
		d.process(ctx, channelID, msg)
	}
}
