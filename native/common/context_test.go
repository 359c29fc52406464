package common

import (
	"errors"
	"testing"
	"time"

	"stablevault/core/events"
	"stablevault/core/state"
	"stablevault/crypto"
	"stablevault/storage"
)

type pingEvent struct{}

func (pingEvent) EventType() string { return "test.ping" }

func testAddr(b byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = b
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func TestCallRevertsStateAndEvents(t *testing.T) {
	mgr := state.NewManager(storage.NewMemDB())
	ctx := NewContext(testAddr(1), mgr, time.Unix(100, 0))
	ctx.Emit(pingEvent{})
	if err := ctx.State().KVPut([]byte("outer"), uint64(1)); err != nil {
		t.Fatalf("put: %v", err)
	}

	boom := errors.New("boom")
	contract := testAddr(9)
	err := ctx.Call(contract, func(inner *Context) error {
		if !inner.Caller().Equal(contract) {
			t.Fatalf("callee should see the calling contract as caller")
		}
		if inner.Depth() != 1 {
			t.Fatalf("unexpected depth %d", inner.Depth())
		}
		inner.Emit(pingEvent{})
		if err := inner.State().KVPut([]byte("inner"), uint64(2)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if ok, _ := mgr.KVGet([]byte("inner"), nil); ok {
		t.Fatalf("inner write should be reverted")
	}
	if ok, _ := mgr.KVGet([]byte("outer"), nil); !ok {
		t.Fatalf("outer write should survive")
	}
	if len(ctx.Events()) != 1 {
		t.Fatalf("expected inner event to be dropped, have %d", len(ctx.Events()))
	}
	if !ctx.Now().Equal(time.Unix(100, 0)) {
		t.Fatalf("timestamp should be fixed for the call")
	}
}

func TestCallKeepsSuccessfulWrites(t *testing.T) {
	mgr := state.NewManager(storage.NewMemDB())
	ctx := NewContext(testAddr(1), mgr, time.Now())
	err := ctx.Call(testAddr(2), func(inner *Context) error {
		inner.Emit(pingEvent{})
		return inner.State().KVPut([]byte("k"), uint64(5))
	})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if ok, _ := mgr.KVGet([]byte("k"), nil); !ok {
		t.Fatalf("expected write to persist in overlay")
	}
	var rec events.Recorder
	for _, e := range ctx.Events() {
		rec.Emit(e)
	}
	if types := rec.Types(); len(types) != 1 || types[0] != "test.ping" {
		t.Fatalf("unexpected events %v", types)
	}
}

func TestCallDepthLimit(t *testing.T) {
	ctx := NewContext(testAddr(1), state.NewManager(storage.NewMemDB()), time.Now())
	var recurse func(*Context) error
	recurse = func(c *Context) error {
		return c.Call(testAddr(3), recurse)
	}
	if err := recurse(ctx); !errors.Is(err, ErrCallDepth) {
		t.Fatalf("expected ErrCallDepth, got %v", err)
	}
}

func TestPauseGuard(t *testing.T) {
	ctx := NewContext(testAddr(1), state.NewManager(storage.NewMemDB()), time.Now())
	scope := testAddr(7)
	if err := Guard(Pauses(ctx, scope), "vault"); err != nil {
		t.Fatalf("unexpected pause: %v", err)
	}
	if err := SetPaused(ctx, scope, "vault", true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := Guard(Pauses(ctx, scope), "vault"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(Pauses(ctx, testAddr(8)), "vault"); err != nil {
		t.Fatalf("pause must be scoped to its contract: %v", err)
	}
	if err := SetPaused(ctx, scope, "vault", false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if err := Guard(Pauses(ctx, scope), "vault"); err != nil {
		t.Fatalf("expected resume, got %v", err)
	}
	if err := Guard(nil, "vault"); err != nil {
		t.Fatalf("nil view should never block")
	}
}

func TestRoleSet(t *testing.T) {
	roles := DefaultRoles()
	if err := roles.Validate(); err != nil {
		t.Fatalf("default roles invalid: %v", err)
	}
	if roles.Minter != 4254773782 || roles.Burner != 1711057910 || roles.Setter != 793457621 {
		t.Fatalf("unexpected default tags %+v", roles)
	}
	if parsed, err := roles.Parse("Minter"); err != nil || parsed != roles.Minter {
		t.Fatalf("parse minter: %v %v", parsed, err)
	}
	if parsed, err := roles.Parse("42"); err != nil || parsed != 42 {
		t.Fatalf("parse numeric: %v %v", parsed, err)
	}
	if _, err := roles.Parse("wizard"); err == nil {
		t.Fatalf("expected unknown role error")
	}
	clash := RoleSet{Minter: 1, Burner: 1, Setter: 2, DefaultAdmin: 0}
	if err := clash.Validate(); err == nil {
		t.Fatalf("expected collision error")
	}
	if roles.Name(roles.Burner) != "burner" {
		t.Fatalf("unexpected name %q", roles.Name(roles.Burner))
	}
}
