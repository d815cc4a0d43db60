package memory

import (
	"context"
	"sync"

	"github.com/naralabs/nara/internal/observability"
)

// ingestQueue decouples transcript ingestion from the message flow: a
// bounded channel fed fire-and-forget and drained by one worker, so a burst
// of conversation messages cannot fan out into unbounded embedding calls.
type ingestQueue struct {
	service *Service
	ch      chan TranscriptMessage
	done    chan struct{}
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

func newIngestQueue(service *Service, size int) *ingestQueue {
	q := &ingestQueue{
		service: service,
		ch:      make(chan TranscriptMessage, size),
		done:    make(chan struct{}),
	}
	q.wg.Add(1)
	go q.drain()
	return q
}

// enqueue never blocks; a full queue drops the message with a warning.
func (q *ingestQueue) enqueue(msg TranscriptMessage) {
	select {
	case q.ch <- msg:
		observability.SetIngestQueueDepth(len(q.ch))
	default:
		q.service.logger.Warn().
			Str("session_key", msg.SessionKey).
			Msg("Ingest queue full, dropping transcript message")
		observability.RecordIngestDrop()
	}
}

func (q *ingestQueue) drain() {
	defer q.wg.Done()
	for {
		select {
		case msg := <-q.ch:
			q.process(msg)
		case <-q.done:
			// Flush whatever is already queued before exiting.
			for {
				select {
				case msg := <-q.ch:
					q.process(msg)
				default:
					return
				}
			}
		}
	}
}

// process surfaces failures via log and metrics only; ingestion errors never
// propagate back to the conversation flow.
func (q *ingestQueue) process(msg TranscriptMessage) {
	observability.SetIngestQueueDepth(len(q.ch))
	if err := q.service.recordTranscript(context.Background(), msg); err != nil {
		q.service.logger.Warn().
			Err(err).
			Str("session_key", msg.SessionKey).
			Msg("Transcript ingestion failed")
		observability.RecordIngestFailure()
	}
}

func (q *ingestQueue) close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
	q.wg.Wait()
}
