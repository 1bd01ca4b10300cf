package remotetest

import (
	"sync"

	"github.com/nimbusdb/remote/rtype"
)

// Query is a fake [rtype.Query].
type Query struct {
	Doc      bool
	DocPath  rtype.DocumentKey
}

func (q Query) IsDocumentQuery() bool   { return q.Doc }
func (q Query) Path() rtype.DocumentKey { return q.DocPath }

// OnlineStateDelegate is a fake [rtype.OnlineStateDelegate] recording
// every transition it observes.
type OnlineStateDelegate struct {
	mu     sync.Mutex
	States []rtype.OnlineState
}

func NewOnlineStateDelegate() *OnlineStateDelegate {
	return &OnlineStateDelegate{}
}

func (d *OnlineStateDelegate) OnWatchStreamOnlineStateChanged(state rtype.OnlineState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.States = append(d.States, state)
}

func (d *OnlineStateDelegate) Snapshot() []rtype.OnlineState {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]rtype.OnlineState, len(d.States))
	copy(out, d.States)
	return out
}
