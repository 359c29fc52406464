package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"stablevault/core"
	"stablevault/crypto"
	"stablevault/native/common"
	"stablevault/storage"
)

func address(b byte) crypto.Address {
	return crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{b}, 20))
}

func TestEnsureSystemDeploysOnceAndReloads(t *testing.T) {
	db := storage.NewMemDB()
	owner := address(0x11)

	node, err := core.NewNode(db, common.DefaultRoles())
	require.NoError(t, err)
	first, err := ensureSystem(node, owner, core.DefaultSystemConfig())
	require.NoError(t, err)
	require.True(t, first.Owner.Equal(owner))

	restarted, err := core.NewNode(db, common.DefaultRoles())
	require.NoError(t, err)
	second, err := ensureSystem(restarted, owner, core.DefaultSystemConfig())
	require.NoError(t, err)
	require.True(t, first.Vault.Equal(second.Vault))
	require.True(t, first.Controller.Equal(second.Controller))
}

func TestEnsureSystemRejectsForeignOwner(t *testing.T) {
	db := storage.NewMemDB()
	node, err := core.NewNode(db, common.DefaultRoles())
	require.NoError(t, err)
	_, err = ensureSystem(node, address(0x11), core.DefaultSystemConfig())
	require.NoError(t, err)

	other, err := core.NewNode(db, common.DefaultRoles())
	require.NoError(t, err)
	if _, err := ensureSystem(other, address(0x22), core.DefaultSystemConfig()); err == nil {
		t.Fatalf("expected owner mismatch error")
	}
}
