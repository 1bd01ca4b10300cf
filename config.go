package remote

import (
	"errors"
	"log/slog"

	"github.com/nimbusdb/remote/rtype"
)

// Config holds the four external collaborators the Remote Store is built
// around (§6) plus the optional delegate notified of online-state
// transitions.
type Config struct {
	LocalStore rtype.LocalStore
	SyncEngine rtype.SyncEngine
	Datastore  rtype.Datastore

	// OnlineStateDelegate is optional. Shutdown detaches it, matching the
	// contract that no delegate method fires after shutdown.
	OnlineStateDelegate rtype.OnlineStateDelegate
}

// validate panics on a missing required collaborator, a programmer error
// per spec §7 item 6.
func (c Config) validate(log *slog.Logger) {
	var panicErrs error

	if c.LocalStore == nil {
		panicErrs = errors.Join(panicErrs, errors.New("remote.Config.LocalStore must not be nil"))
	}
	if c.SyncEngine == nil {
		panicErrs = errors.Join(panicErrs, errors.New("remote.Config.SyncEngine must not be nil"))
	}
	if c.Datastore == nil {
		panicErrs = errors.Join(panicErrs, errors.New("remote.Config.Datastore must not be nil"))
	}

	if panicErrs != nil {
		log.Error("invalid remote.Config", "err", panicErrs)
		panic(panicErrs)
	}
}
