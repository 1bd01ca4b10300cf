// Package dcert holds the certificate-chain handle rquic uses to
// recover a QUIC peer's verified identity, trimmed from the teacher's
// own dcert package down to chain validation: the Remote Store has no
// gossip protocol of its own to serialize a chain onto the wire, so the
// teacher's Encode/Decode wire format for Chain is dropped here (TLS
// already carries the certificates; rquic only ever needs to read back
// what the handshake already verified).
package dcert

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"iter"
	"slices"
)

// MaxIntermediateLen bounds the number of intermediate certificates a
// Chain may carry.
const MaxIntermediateLen = 7

// Chain is a certificate chain with a distinguished leaf and root,
// mirroring the shape TLS itself verifies a peer against.
type Chain struct {
	Leaf *x509.Certificate

	Intermediate []*x509.Certificate

	Root *x509.Certificate
}

// NewChainFromCerts returns a Chain from certs, ordered leaf-first,
// root-last.
func NewChainFromCerts(certs []*x509.Certificate) (Chain, error) {
	if len(certs) < 2 {
		return Chain{}, fmt.Errorf(
			"chain must have at least two entries (got %d)", len(certs),
		)
	}
	if len(certs) > 2+MaxIntermediateLen {
		return Chain{}, fmt.Errorf(
			"chain is limited to %d intermediate certificates (got %d)",
			MaxIntermediateLen, len(certs)-2,
		)
	}

	chain := Chain{
		Leaf: certs[0],
		Root: certs[len(certs)-1],
	}
	if len(certs) > 2 {
		chain.Intermediate = slices.Clip(certs[1 : len(certs)-1])
	}
	return chain, nil
}

// NewChainFromTLSConnectionState recovers the peer's verified chain
// from a completed TLS handshake, the way [rquic.PeerChain] uses it to
// identify a QUIC connection's remote end.
func NewChainFromTLSConnectionState(s tls.ConnectionState) (Chain, error) {
	if len(s.VerifiedChains) == 0 {
		return Chain{}, errors.New("connection state had no verified chains")
	}
	return NewChainFromCerts(s.VerifiedChains[0])
}

// Validate reports every structural problem with c, joined into one
// error, or nil if c is well-formed.
func (c Chain) Validate() error {
	var err error
	if c.Leaf == nil {
		err = errors.Join(err, errors.New("Chain.Leaf must not be nil"))
	}
	if len(c.Intermediate) > MaxIntermediateLen {
		err = errors.Join(err, fmt.Errorf(
			"%d intermediate entries exceeds limit of %d",
			len(c.Intermediate), MaxIntermediateLen,
		))
	}
	if c.Root == nil {
		err = errors.Join(err, errors.New("Chain.Root must not be nil"))
	}
	return err
}

// Len returns the total number of certificates in the chain.
func (c Chain) Len() int {
	return 2 + len(c.Intermediate)
}

// All iterates every certificate in c, leaf first, root last.
func (c Chain) All() iter.Seq[*x509.Certificate] {
	return func(yield func(*x509.Certificate) bool) {
		if !yield(c.Leaf) {
			return
		}
		for _, i := range c.Intermediate {
			if !yield(i) {
				return
			}
		}
		yield(c.Root)
	}
}
