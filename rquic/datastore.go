package rquic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nimbusdb/remote/rtype"
)

// QueryCodec encodes the opaque [rtype.Query] handles the core carries
// around into bytes this transport can put on the wire. rtype.Query
// stays uninterpreted by the core (§6); a concrete transport still needs
// to serialize whatever it actually is, so the codec is supplied here,
// not baked into rtype.
type QueryCodec interface {
	Encode(q rtype.Query) ([]byte, error)
}

// Config holds the QUIC connection and query codec a Datastore needs.
type Config struct {
	Conn       Conn
	QueryCodec QueryCodec
}

func (c Config) validate(log *slog.Logger) {
	var panicErrs error
	if c.Conn == nil {
		panicErrs = errors.Join(panicErrs, errors.New("rquic.Config.Conn must not be nil"))
	}
	if c.QueryCodec == nil {
		panicErrs = errors.Join(panicErrs, errors.New("rquic.Config.QueryCodec must not be nil"))
	}
	if panicErrs != nil {
		log.Error("invalid rquic.Config", "err", panicErrs)
		panic(panicErrs)
	}
}

// Datastore is a concrete [rtype.Datastore] backed by a single QUIC
// connection: each call to CreateWatchStream/CreateWriteStream opens a
// fresh bidirectional stream on that connection.
type Datastore struct {
	log *slog.Logger

	conn  Conn
	codec QueryCodec
}

// New returns a Datastore driving cfg.Conn. The connection is expected
// to already be established (mTLS handshake complete) by the caller,
// the way the teacher's dragon.Node hands out an already-dialed
// dquic.Conn rather than owning dialing itself. The peer's verified
// certificate chain is logged here, the way dquic's dialer confirms and
// logs a peer's identity once a connection is handed back to the caller.
func New(log *slog.Logger, cfg Config) *Datastore {
	cfg.validate(log)

	if chain, err := PeerChain(cfg.Conn); err != nil {
		log.Warn("could not recover peer certificate chain", "err", err)
	} else {
		log.Info("datastore connection established", "peer", chain.Leaf.Subject.CommonName)
	}

	return &Datastore{log: log, conn: cfg.Conn, codec: cfg.QueryCodec}
}

func (d *Datastore) CreateWatchStream() rtype.WatchStream {
	return newWatchStream(d.log.With("stream", "watch"), d.conn, d.codec)
}

func (d *Datastore) CreateWriteStream() rtype.WriteStream {
	return newWriteStream(d.log.With("stream", "write"), d.conn)
}

func (d *Datastore) IsPermanentWriteError(err error) bool {
	var se *StreamError
	return errors.As(err, &se) && se.Code == ErrCodePermanent
}

func (d *Datastore) IsAborted(err error) bool {
	var se *StreamError
	return errors.As(err, &se) && se.Code == ErrCodeAborted
}

func (d *Datastore) CreateTransaction(ctx context.Context) (rtype.Transaction, error) {
	return nil, fmt.Errorf("rquic: CreateTransaction not implemented: transactions run outside the watch/write streams this package provides")
}
