package common

import (
	"errors"

	"stablevault/crypto"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// statePauses reads pause flags persisted under a contract's namespace.
type statePauses struct {
	state StateStore
	scope crypto.Address
}

// Pauses returns a PauseView backed by the flags SetPaused wrote for scope.
func Pauses(ctx *Context, scope crypto.Address) PauseView {
	if ctx == nil {
		return nil
	}
	return statePauses{state: ctx.State(), scope: scope}
}

func (p statePauses) IsPaused(module string) bool {
	var paused bool
	ok, err := p.state.KVGet(Key(p.scope, "pause", []byte(module)), &paused)
	if err != nil || !ok {
		return false
	}
	return paused
}

// SetPaused persists the pause flag for module under scope.
func SetPaused(ctx *Context, scope crypto.Address, module string, paused bool) error {
	key := Key(scope, "pause", []byte(module))
	if !paused {
		return ctx.State().KVDelete(key)
	}
	return ctx.State().KVPut(key, true)
}
