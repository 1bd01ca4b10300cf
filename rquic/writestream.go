package rquic

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/nimbusdb/remote/rtype"
)

// writeStream is a concrete [rtype.WriteStream] backed by one QUIC
// bidirectional stream, paired with watchStream's structure.
type writeStream struct {
	log  *slog.Logger
	conn Conn

	mu          sync.Mutex
	stream      Stream
	started     bool
	handshakeOK bool
	lastToken   []byte
	delegate    rtype.WriteStreamDelegate
	cancel      context.CancelFunc

	writeMu sync.Mutex
}

func newWriteStream(log *slog.Logger, conn Conn) *writeStream {
	return &writeStream{log: log, conn: conn}
}

func (s *writeStream) Start(delegate rtype.WriteStreamDelegate) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		panic("BUG: rquic write stream Start called while already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.started = true
	s.handshakeOK = false
	s.delegate = delegate
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx)
}

func (s *writeStream) run(ctx context.Context) {
	stream, err := s.conn.OpenStreamSync(ctx)
	if err != nil {
		s.finish(err)
		return
	}

	s.mu.Lock()
	s.stream = stream
	delegate := s.delegate
	s.mu.Unlock()

	delegate.OnWriteStreamOpen()

	for {
		var msg wireWriteMessage
		if err := readFrame(stream, &msg); err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			s.finish(err)
			return
		}

		if msg.HandshakeComplete {
			s.mu.Lock()
			s.handshakeOK = true
			if msg.StreamToken != nil {
				s.lastToken = msg.StreamToken
			}
			s.mu.Unlock()
			delegate.OnWriteStreamHandshakeComplete()
			continue
		}

		if msg.Response != nil {
			resp := msg.Response
			results := make([]rtype.MutationResult, len(resp.Results))
			for i, r := range resp.Results {
				results[i] = rtype.MutationResult{Version: r.Version}
			}
			delegate.OnWriteStreamResponse(resp.CommitVersion, results)
		}
	}
}

func (s *writeStream) finish(err error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.handshakeOK = false
	delegate := s.delegate
	if s.stream != nil {
		_ = s.stream.Close()
	}
	s.mu.Unlock()

	delegate.OnWriteStreamClose(err)
}

func (s *writeStream) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.handshakeOK = false
	cancel := s.cancel
	stream := s.stream
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stream != nil {
		_ = stream.Close()
	}
}

func (s *writeStream) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *writeStream) HandshakeComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handshakeOK
}

func (s *writeStream) LastStreamToken() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastToken
}

// SetLastStreamToken installs token as what the next WriteHandshake
// sends, and what LastStreamToken subsequently reports. Used both to
// load a persisted token before the stream starts (§4.6 enable_network)
// and to clear it after an aborted/permanent handshake error (§4.5/§7).
func (s *writeStream) SetLastStreamToken(token []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastToken = token
}

func (s *writeStream) WriteHandshake(_ context.Context) error {
	stream := s.currentStream()
	if stream == nil {
		return errors.New("rquic: write stream not open")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return writeFrame(stream, wireWriteMessage{Handshake: true, StreamToken: s.LastStreamToken()})
}

func (s *writeStream) WriteMutations(_ context.Context, batch rtype.MutationBatch) error {
	stream := s.currentStream()
	if stream == nil {
		return errors.New("rquic: write stream not open")
	}

	wb := toWireMutationBatch(batch)
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return writeFrame(stream, wireWriteMessage{Mutations: &wb})
}

// MarkIdle is a hint only; see watchStream.MarkIdle.
func (s *writeStream) MarkIdle() {
	s.log.Debug("write stream marked idle")
}

// InhibitBackoff records nothing here: this package's streams carry no
// timer of their own, the same way the teacher leaves reconnect pacing
// to the caller rather than the connection wrapper.
func (s *writeStream) InhibitBackoff() {
	s.log.Debug("write stream backoff inhibited")
}

func (s *writeStream) currentStream() Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}
