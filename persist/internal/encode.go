// Package internal holds small big-endian key encodings used to keep BoltDB
// bucket keys in height/index order.
package internal

import "encoding/binary"

// EncodeUint64 encodes v as a sortable, fixed-width bucket key.
func EncodeUint64(v uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, v)
	return key
}

// DecodeUint64 decodes a key produced by EncodeUint64.
func DecodeUint64(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}
