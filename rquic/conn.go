package rquic

import (
	"context"
	"crypto/tls"
	"io"

	"github.com/nimbusdb/remote/dcert"
	"github.com/quic-go/quic-go"
)

// Stream is the minimal read/write/close surface rquic needs from a
// QUIC bidirectional stream. *quic.Stream satisfies this directly; the
// interface exists so tests can substitute an in-memory pipe instead of
// a real QUIC connection.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// Conn is the subset of [*quic.Conn] rquic depends on, mirroring the
// teacher's dquic.Conn narrowing of the quic-go connection surface down
// to only the methods actually used.
type Conn interface {
	OpenStreamSync(ctx context.Context) (Stream, error)
	CloseWithError(code quic.ApplicationErrorCode, msg string) error

	// TLSConnectionState exposes the negotiated TLS state so the peer's
	// certificate chain can be recovered with PeerChain, the way
	// dquic.Conn.TLSConnectionState backs dquic's dialer verification.
	TLSConnectionState() tls.ConnectionState
}

// ConnAdapter wraps a [*quic.Conn], implementing [Conn]. Create one with
// [WrapConn].
type ConnAdapter struct {
	qc *quic.Conn
}

// WrapConn wraps qc, returning a value implementing [Conn].
func WrapConn(qc *quic.Conn) ConnAdapter {
	return ConnAdapter{qc: qc}
}

func (c ConnAdapter) OpenStreamSync(ctx context.Context) (Stream, error) {
	return c.qc.OpenStreamSync(ctx)
}

func (c ConnAdapter) CloseWithError(code quic.ApplicationErrorCode, msg string) error {
	return c.qc.CloseWithError(code, msg)
}

func (c ConnAdapter) TLSConnectionState() tls.ConnectionState {
	return c.qc.ConnectionState().TLS
}

// PeerChain recovers the verified certificate chain the peer presented
// during the QUIC handshake, the way dquic's dialer confirms identity
// before handing a connection back to the caller.
func PeerChain(conn Conn) (dcert.Chain, error) {
	return dcert.NewChainFromTLSConnectionState(conn.TLSConnectionState())
}
