package rquic

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/nimbusdb/remote/rtype"
)

// watchStream is a concrete [rtype.WatchStream] backed by one QUIC
// bidirectional stream. Start opens the stream lazily and spawns a
// single reader goroutine that decodes frames and invokes delegate
// callbacks directly; per §5 it is the embedder's job to serialize
// those callbacks onto its own executor (the way wsi.Session reads off
// a channel rather than taking direct callbacks), which this package
// leaves to the caller rather than imposing its own dispatch loop.
type watchStream struct {
	log   *slog.Logger
	conn  Conn
	codec QueryCodec

	mu       sync.Mutex
	stream   Stream
	started  bool
	open     bool
	delegate rtype.WatchStreamDelegate
	cancel   context.CancelFunc

	writeMu sync.Mutex
}

func newWatchStream(log *slog.Logger, conn Conn, codec QueryCodec) *watchStream {
	return &watchStream{log: log, conn: conn, codec: codec}
}

func (s *watchStream) Start(delegate rtype.WatchStreamDelegate) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		panic("BUG: rquic watch stream Start called while already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.started = true
	s.delegate = delegate
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx)
}

func (s *watchStream) run(ctx context.Context) {
	stream, err := s.conn.OpenStreamSync(ctx)
	if err != nil {
		s.finish(err)
		return
	}

	s.mu.Lock()
	s.stream = stream
	s.open = true
	delegate := s.delegate
	s.mu.Unlock()

	delegate.OnWatchStreamOpen()

	for {
		var msg wireWatchMessage
		if err := readFrame(stream, &msg); err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			s.finish(err)
			return
		}

		change, version, ok := msg.toChange()
		if !ok {
			continue
		}
		delegate.OnWatchStreamChange(change, version)
	}
}

func (s *watchStream) finish(err error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.open = false
	delegate := s.delegate
	if s.stream != nil {
		_ = s.stream.Close()
	}
	s.mu.Unlock()

	delegate.OnWatchStreamClose(err)
}

func (s *watchStream) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.open = false
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

func (s *watchStream) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *watchStream) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// MarkIdle is a hint only: a QUIC connection's idle timeout is managed
// at the connection level, outside what a single stream controls.
func (s *watchStream) MarkIdle() {
	s.log.Debug("watch stream marked idle")
}

func (s *watchStream) WatchQuery(_ context.Context, qd rtype.QueryData) error {
	payload, err := s.codec.Encode(qd.Query)
	if err != nil {
		return err
	}

	stream := s.currentStream()
	if stream == nil {
		return errors.New("rquic: watch stream not open")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return writeFrame(stream, wireWatchMessage{
		WatchQuery: &wireQueryData{
			TargetId:        qd.TargetId,
			Purpose:         qd.Purpose,
			SnapshotVersion: qd.SnapshotVersion,
			ResumeToken:     qd.ResumeToken,
			QueryPayload:    payload,
		},
	})
}

func (s *watchStream) UnwatchTarget(_ context.Context, target rtype.TargetId) error {
	stream := s.currentStream()
	if stream == nil {
		return errors.New("rquic: watch stream not open")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return writeFrame(stream, wireWatchMessage{UnwatchTarget: &target})
}

func (s *watchStream) currentStream() Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// toChange converts an inbound wire message into an rtype.WatchChange,
// reporting ok==false for a message carrying no recognized payload
// (outbound-only fields set on a message we somehow received, or an
// empty keepalive frame).
func (m wireWatchMessage) toChange() (rtype.WatchChange, rtype.SnapshotVersion, bool) {
	version := rtype.NoSnapshotVersion
	if m.SnapshotVersion != nil {
		version = *m.SnapshotVersion
	}

	switch {
	case m.TargetChange != nil:
		tc := m.TargetChange
		var cause error
		if tc.Cause != "" {
			cause = errors.New(tc.Cause)
		}
		return rtype.WatchChange{TargetChange: &rtype.TargetChange{
			State:           tc.State,
			TargetIds:       tc.TargetIds,
			ResumeToken:     rtype.ResumeToken(tc.ResumeToken),
			SnapshotVersion: tc.SnapshotVersion,
			Cause:           cause,
		}}, version, true

	case m.DocumentChange != nil:
		dc := m.DocumentChange
		return rtype.WatchChange{DocumentChange: &rtype.DocumentChange{
			Document:         dc.Document.toDocument(),
			TargetIds:        dc.TargetIds,
			RemovedTargetIds: dc.RemovedTargetIds,
		}}, version, true

	case m.ExistenceFilter != nil:
		ef := m.ExistenceFilter
		return rtype.WatchChange{ExistenceFilterChange: &rtype.ExistenceFilterChange{
			TargetId: ef.TargetId,
			Filter:   rtype.ExistenceFilter{Count: ef.Count},
		}}, version, true

	default:
		return rtype.WatchChange{}, version, false
	}
}
