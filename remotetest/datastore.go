package remotetest

import (
	"context"
	"sync"

	"github.com/nimbusdb/remote/rtype"
)

// Datastore is a fake [rtype.Datastore]. NewWatchStreamFn/NewWriteStreamFn
// default to producing a fresh [WatchStream]/[WriteStream]; tests that
// need to observe the created stream can override them to stash it.
type Datastore struct {
	NewWatchStreamFn func() rtype.WatchStream
	NewWriteStreamFn func() rtype.WriteStream

	PermanentWriteErrorFn func(error) bool
	AbortedFn             func(error) bool

	TransactionErr error
}

func NewDatastore() *Datastore {
	return &Datastore{
		NewWatchStreamFn:      func() rtype.WatchStream { return NewWatchStream() },
		NewWriteStreamFn:      func() rtype.WriteStream { return NewWriteStream() },
		PermanentWriteErrorFn: func(error) bool { return false },
		AbortedFn:             func(error) bool { return false },
	}
}

func (d *Datastore) CreateWatchStream() rtype.WatchStream { return d.NewWatchStreamFn() }
func (d *Datastore) CreateWriteStream() rtype.WriteStream { return d.NewWriteStreamFn() }

func (d *Datastore) IsPermanentWriteError(err error) bool { return d.PermanentWriteErrorFn(err) }
func (d *Datastore) IsAborted(err error) bool             { return d.AbortedFn(err) }

func (d *Datastore) CreateTransaction(context.Context) (rtype.Transaction, error) {
	if d.TransactionErr != nil {
		return nil, d.TransactionErr
	}
	return &Transaction{}, nil
}

// Transaction is a fake [rtype.Transaction] recording Commit/Rollback calls.
type Transaction struct {
	mu sync.Mutex

	Commits   int
	Rollbacks int
}

func (tx *Transaction) Commit(context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.Commits++
	return nil
}

func (tx *Transaction) Rollback(context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.Rollbacks++
	return nil
}
