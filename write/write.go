// Package write implements the write subsystem (§4.5): a bounded FIFO
// pipeline of mutation batches gated by a write-stream handshake, with
// per-batch ack/error handling.
package write

import (
	"context"
	"log/slog"

	"github.com/nimbusdb/remote/rtype"
)

// MaxPendingWrites bounds the pending-writes queue (I3).
const MaxPendingWrites = 10

// Subsystem owns the pending-writes queue and last-batch-seen cursor
// described in §3, and implements the write-side operations of §4.5.
type Subsystem struct {
	log *slog.Logger

	localStore rtype.LocalStore
	syncEngine rtype.SyncEngine
	datastore  rtype.Datastore

	stream        rtype.WriteStream
	handshakeDone bool

	pendingWrites []rtype.MutationBatch
	lastBatchSeen rtype.BatchId
}

// New returns an empty Subsystem with LastBatchSeen at the UNKNOWN
// sentinel and no stream attached.
func New(log *slog.Logger, localStore rtype.LocalStore, syncEngine rtype.SyncEngine, datastore rtype.Datastore) *Subsystem {
	return &Subsystem{
		log:        log,
		localStore: localStore,
		syncEngine: syncEngine,
		datastore:  datastore,

		lastBatchSeen: rtype.UnknownBatchId,
	}
}

// IsNetworkEnabled reports whether a stream handle is present.
func (s *Subsystem) IsNetworkEnabled() bool {
	return s.stream != nil
}

// PendingWriteCount returns the current pipeline depth, for tests
// asserting P1 (|pending_writes| <= MaxPendingWrites).
func (s *Subsystem) PendingWriteCount() int {
	return len(s.pendingWrites)
}

// LastBatchSeen returns the cursor used by NextMutationBatchAfter.
func (s *Subsystem) LastBatchSeen() rtype.BatchId {
	return s.lastBatchSeen
}

// AttachStream installs stream as the subsystem's write stream, loads
// the persisted stream token into it, and fills the pipeline. Called by
// the facade's enable_network.
func (s *Subsystem) AttachStream(ctx context.Context, stream rtype.WriteStream) error {
	if s.stream != nil {
		panic("BUG: AttachStream called while a write stream is already attached")
	}
	s.stream = stream

	token, err := s.localStore.LastStreamToken(ctx)
	if err != nil {
		return err
	}
	stream.SetLastStreamToken(token)

	return s.fillWritePipeline(ctx)
}

// DetachStream stops the stream and clears transient write state: the
// pending-writes queue and the last-batch-seen cursor. Unacknowledged
// batches stay in the local store, so the next AttachStream refills the
// pipeline from it starting at UnknownBatchId.
func (s *Subsystem) DetachStream() {
	if s.stream == nil {
		return
	}
	s.stream.Stop()
	s.stream = nil
	s.handshakeDone = false
	s.pendingWrites = nil
	s.lastBatchSeen = rtype.UnknownBatchId
}

// ResetForUserChange clears pendingWrites and lastBatchSeen, per I6:
// "On user change, after disable -> enable, all state derived from the
// previous user... is cleared."
func (s *Subsystem) ResetForUserChange() {
	s.pendingWrites = nil
	s.lastBatchSeen = rtype.UnknownBatchId
}

func (s *Subsystem) canWriteMutations() bool {
	return s.stream != nil && len(s.pendingWrites) < MaxPendingWrites
}

func (s *Subsystem) shouldStartWriteStream() bool {
	return s.stream != nil && !s.stream.IsStarted() && len(s.pendingWrites) > 0
}

// fillWritePipeline implements §4.5 fill_write_pipeline: while
// can_write_mutations, pull the next queued batch and commit it. When
// the pipeline drains to empty, mark the stream idle.
func (s *Subsystem) fillWritePipeline(ctx context.Context) error {
	for s.canWriteMutations() {
		batch, ok, err := s.localStore.NextMutationBatchAfter(ctx, s.lastBatchSeen)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		s.commitBatch(ctx, batch)
	}

	if len(s.pendingWrites) == 0 && s.stream != nil {
		s.stream.MarkIdle()
	}
	return nil
}

// commitBatch implements §4.5 commit_batch.
func (s *Subsystem) commitBatch(ctx context.Context, batch rtype.MutationBatch) {
	s.lastBatchSeen = batch.BatchId
	s.pendingWrites = append(s.pendingWrites, batch)

	switch {
	case s.shouldStartWriteStream():
		s.stream.Start(delegateFor(s, ctx))
	case s.handshakeDone:
		if err := s.stream.WriteMutations(ctx, batch); err != nil {
			s.log.Warn("failed to send mutation batch", "batch", batch.BatchId, "err", err)
		}
	}
	// Else: buffered in pendingWrites only, drained on handshake completion.
}

type delegateWithCtx struct {
	s   *Subsystem
	ctx context.Context
}

func delegateFor(s *Subsystem, ctx context.Context) rtype.WriteStreamDelegate {
	return delegateWithCtx{s: s, ctx: ctx}
}

func (d delegateWithCtx) OnWriteStreamOpen() {
	d.s.onStreamOpen(d.ctx)
}

func (d delegateWithCtx) OnWriteStreamHandshakeComplete() {
	d.s.onHandshakeComplete(d.ctx)
}

func (d delegateWithCtx) OnWriteStreamResponse(commitVersion rtype.SnapshotVersion, results []rtype.MutationResult) {
	d.s.onMutationResult(d.ctx, commitVersion, results)
}

func (d delegateWithCtx) OnWriteStreamClose(err error) {
	d.s.onStreamClosed(d.ctx, err)
}

// onStreamOpen sends the handshake request, per §4.5.
func (s *Subsystem) onStreamOpen(ctx context.Context) {
	s.handshakeDone = false
	if err := s.stream.WriteHandshake(ctx); err != nil {
		s.log.Warn("failed to send write handshake", "err", err)
	}
}

// onHandshakeComplete persists the server-issued stream token then
// resends every batch currently pending, per §4.5. This bypasses
// canWriteMutations deliberately: the pipeline was already sized by
// commitBatch, so I3 holds without rechecking here.
func (s *Subsystem) onHandshakeComplete(ctx context.Context) {
	s.handshakeDone = true
	if err := s.localStore.SetLastStreamToken(ctx, s.stream.LastStreamToken()); err != nil {
		s.log.Warn("failed to persist stream token", "err", err)
	}

	for _, batch := range s.pendingWrites {
		if err := s.stream.WriteMutations(ctx, batch); err != nil {
			s.log.Warn("failed to resend mutation batch after handshake", "batch", batch.BatchId, "err", err)
		}
	}
}

// onMutationResult implements §4.5 Mutation-result: the response always
// corresponds to the oldest pending batch (FIFO).
func (s *Subsystem) onMutationResult(ctx context.Context, commitVersion rtype.SnapshotVersion, results []rtype.MutationResult) {
	if len(s.pendingWrites) == 0 {
		panic("BUG: mutation result received with no pending writes")
	}

	batch := s.pendingWrites[0]
	s.pendingWrites = s.pendingWrites[1:]

	s.syncEngine.ApplySuccessfulWrite(rtype.MutationBatchResult{
		Batch:           batch,
		CommitVersion:   commitVersion,
		MutationResults: results,
		StreamToken:     s.stream.LastStreamToken(),
	})

	if err := s.fillWritePipeline(ctx); err != nil {
		s.log.Warn("failed to refill write pipeline", "err", err)
	}
}

// onStreamClosed implements §4.5 Stream-closed(error).
func (s *Subsystem) onStreamClosed(ctx context.Context, err error) {
	if s.stream == nil {
		panic("BUG: write stream closed callback fired with network disabled")
	}

	handshakeWasComplete := s.handshakeDone
	s.handshakeDone = false

	if err != nil && len(s.pendingWrites) > 0 {
		if handshakeWasComplete {
			s.handleWriteError(ctx, err)
		} else {
			s.handleHandshakeError(ctx, err)
		}
	}

	if s.shouldStartWriteStream() {
		s.stream.Start(delegateFor(s, ctx))
	}
}

// handleHandshakeError implements §4.5/§7 item 3: an aborted or
// permanent pre-handshake error clears the stream token, on both the
// stream and in local_store, so the next handshake starts clean.
func (s *Subsystem) handleHandshakeError(ctx context.Context, err error) {
	if !s.datastore.IsPermanentWriteError(err) && !s.datastore.IsAborted(err) {
		return
	}
	s.stream.SetLastStreamToken(nil)
	if setErr := s.localStore.SetLastStreamToken(ctx, nil); setErr != nil {
		s.log.Warn("failed to clear stream token", "err", setErr)
	}
}

// handleWriteError implements §4.5/§7 item 2: a permanent write error
// pops the offending batch, inhibits backoff (the fault was
// request-specific), rejects the write, and refills the pipeline.
func (s *Subsystem) handleWriteError(ctx context.Context, err error) {
	if !s.datastore.IsPermanentWriteError(err) {
		return
	}

	batch := s.pendingWrites[0]
	s.pendingWrites = s.pendingWrites[1:]

	s.stream.InhibitBackoff()
	s.syncEngine.RejectFailedWrite(batch.BatchId, err)

	if fillErr := s.fillWritePipeline(ctx); fillErr != nil {
		s.log.Warn("failed to refill write pipeline after rejected batch", "err", fillErr)
	}
}
