package remotetest

import (
	"context"
	"sync"

	"github.com/nimbusdb/remote/rtype"
)

// WriteStream is a fake [rtype.WriteStream] with the same "record calls,
// let the test drive callbacks" shape as [WatchStream].
type WriteStream struct {
	mu sync.Mutex

	started           bool
	handshakeComplete bool
	lastToken         []byte
	idle              int
	inhibited         int

	delegate rtype.WriteStreamDelegate

	HandshakeCalls []struct{}
	WriteCalls     []rtype.MutationBatch
	SetTokenCalls  [][]byte
}

func NewWriteStream() *WriteStream {
	return &WriteStream{}
}

func (f *WriteStream) Start(delegate rtype.WriteStreamDelegate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	f.delegate = delegate
}

func (f *WriteStream) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
	f.handshakeComplete = false
}

func (f *WriteStream) IsStarted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *WriteStream) HandshakeComplete() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handshakeComplete
}

func (f *WriteStream) LastStreamToken() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastToken
}

// SetLastStreamToken is a fake [rtype.WriteStream.SetLastStreamToken],
// recording every value it was called with so tests can assert on both
// the load (AttachStream) and clear (handleHandshakeError) paths.
func (f *WriteStream) SetLastStreamToken(token []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastToken = token
	f.SetTokenCalls = append(f.SetTokenCalls, token)
}

func (f *WriteStream) WriteHandshake(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.HandshakeCalls = append(f.HandshakeCalls, struct{}{})
	return nil
}

func (f *WriteStream) WriteMutations(_ context.Context, batch rtype.MutationBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.WriteCalls = append(f.WriteCalls, batch)
	return nil
}

func (f *WriteStream) MarkIdle() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idle++
}

func (f *WriteStream) IdleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idle
}

func (f *WriteStream) InhibitBackoff() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inhibited++
}

func (f *WriteStream) InhibitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inhibited
}

// SimulateOpen fires OnWriteStreamOpen.
func (f *WriteStream) SimulateOpen() {
	f.mu.Lock()
	d := f.delegate
	f.mu.Unlock()
	d.OnWriteStreamOpen()
}

// SimulateHandshakeComplete marks the handshake done, sets the server
// stream token, and fires OnWriteStreamHandshakeComplete.
func (f *WriteStream) SimulateHandshakeComplete(token []byte) {
	f.mu.Lock()
	f.handshakeComplete = true
	f.lastToken = token
	d := f.delegate
	f.mu.Unlock()
	d.OnWriteStreamHandshakeComplete()
}

// SimulateResponse fires OnWriteStreamResponse.
func (f *WriteStream) SimulateResponse(commitVersion rtype.SnapshotVersion, results []rtype.MutationResult) {
	f.mu.Lock()
	d := f.delegate
	f.mu.Unlock()
	d.OnWriteStreamResponse(commitVersion, results)
}

// SimulateClose marks the stream closed and fires OnWriteStreamClose.
func (f *WriteStream) SimulateClose(err error) {
	f.mu.Lock()
	f.started = false
	f.handshakeComplete = false
	d := f.delegate
	f.mu.Unlock()
	d.OnWriteStreamClose(err)
}
