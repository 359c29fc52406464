package common

import (
	"encoding/binary"

	"stablevault/crypto"
)

// Key builds a storage key namespaced by the owning contract address.
func Key(contract crypto.Address, name string, parts ...[]byte) []byte {
	size := len(contract.Bytes()) + 1 + len(name)
	for _, part := range parts {
		size += 1 + len(part)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, contract.Bytes()...)
	buf = append(buf, '/')
	buf = append(buf, name...)
	for _, part := range parts {
		buf = append(buf, '/')
		buf = append(buf, part...)
	}
	return buf
}

// U64 encodes v big-endian for use as a key part or list entry.
func U64(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

// ParseU64 decodes a value produced by U64.
func ParseU64(b []byte) (uint64, bool) {
	if len(b) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(b), true
}
