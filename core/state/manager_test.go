package state

import (
	"math/big"
	"testing"

	"stablevault/storage"
)

type kvRecord struct {
	Amount *big.Int
	Label  string
}

func TestKVPutGetCommit(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	mgr := NewManager(db)

	if err := mgr.KVPut([]byte("vault/1"), kvRecord{Amount: big.NewInt(42), Label: "a"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	var out kvRecord
	ok, err := mgr.KVGet([]byte("vault/1"), &out)
	if err != nil || !ok {
		t.Fatalf("get pending: ok=%v err=%v", ok, err)
	}
	if out.Amount.Cmp(big.NewInt(42)) != 0 || out.Label != "a" {
		t.Fatalf("unexpected record %+v", out)
	}
	if db.Len() != 0 {
		t.Fatalf("pending writes must not reach the database before commit")
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if db.Len() != 1 {
		t.Fatalf("expected one committed key, got %d", db.Len())
	}

	fresh := NewManager(db)
	var reloaded kvRecord
	ok, err = fresh.KVGet([]byte("vault/1"), &reloaded)
	if err != nil || !ok {
		t.Fatalf("reload: ok=%v err=%v", ok, err)
	}
	if reloaded.Amount.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("unexpected reloaded amount %s", reloaded.Amount)
	}
}

func TestKVDiscard(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	if err := mgr.KVPut([]byte("k"), uint64(7)); err != nil {
		t.Fatalf("put: %v", err)
	}
	mgr.Discard()
	ok, err := mgr.KVGet([]byte("k"), nil)
	if err != nil || ok {
		t.Fatalf("expected key to vanish after discard: ok=%v err=%v", ok, err)
	}
	if db.Len() != 0 {
		t.Fatalf("discard leaked writes")
	}
}

func TestSnapshotRevert(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	if err := mgr.KVPut([]byte("a"), uint64(1)); err != nil {
		t.Fatalf("put: %v", err)
	}
	snap := mgr.Snapshot()
	if err := mgr.KVPut([]byte("a"), uint64(2)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := mgr.KVPut([]byte("b"), uint64(3)); err != nil {
		t.Fatalf("put: %v", err)
	}
	mgr.RevertToSnapshot(snap)

	var a uint64
	if ok, err := mgr.KVGet([]byte("a"), &a); err != nil || !ok || a != 1 {
		t.Fatalf("expected a=1 after revert, got %d ok=%v err=%v", a, ok, err)
	}
	if ok, _ := mgr.KVGet([]byte("b"), nil); ok {
		t.Fatalf("expected b to be reverted")
	}
}

func TestKVDeleteMasksCommitted(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	if err := mgr.KVPut([]byte("k"), uint64(1)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := mgr.KVDelete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := mgr.KVGet([]byte("k"), nil); ok {
		t.Fatalf("tombstone should hide committed value")
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if db.Len() != 0 {
		t.Fatalf("expected delete to reach the database")
	}
}

func TestKVListAppendRemove(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	key := []byte("owner/vaults")
	for _, v := range [][]byte{{1}, {2}, {1}, {3}} {
		if err := mgr.KVAppend(key, v); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	var list [][]byte
	if err := mgr.KVGetList(key, &list); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected deduplicated list of 3, got %d", len(list))
	}
	if err := mgr.KVRemove(key, []byte{2}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := mgr.KVGetList(key, &list); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(list) != 2 || list[0][0] != 1 || list[1][0] != 3 {
		t.Fatalf("unexpected list after remove: %v", list)
	}

	var empty [][]byte
	if err := mgr.KVGetList([]byte("missing"), &empty); err != nil {
		t.Fatalf("missing list: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice")
	}
}
