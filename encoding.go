package repoql

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/vmihailenco/msgpack/v5"
)

// Key encoding helpers for bbolt.

// encodeUint64 encodes a uint64 as 8-byte big-endian.
func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// encodeTypeKey creates a node type index key: type + 0x00 + path.
// Paths sort after the separator, so a prefix scan lists every node of
// the type in path order.
func encodeTypeKey(nodeType, path string) []byte {
	buf := make([]byte, 0, len(nodeType)+1+len(path))
	buf = append(buf, nodeType...)
	buf = append(buf, 0x00)
	return append(buf, path...)
}

// encodeTypePrefix creates just the prefix part of a type index key.
func encodeTypePrefix(nodeType string) []byte {
	return append([]byte(nodeType), 0x00)
}

// decodeTypeKeyPath returns the path part of a type index key.
func decodeTypeKeyPath(k []byte, nodeType string) string {
	return string(k[len(nodeType)+1:])
}

// Magic byte for record encoding format detection.
const recordMagicCRC byte = 0x02 // MessagePack with CRC32 checksum

// crc32Table is the precomputed Castagnoli CRC32 table (hardware-accelerated on modern CPUs).
var crc32Table = crc32.MakeTable(crc32.Castagnoli)

// storedValue is the on-disk form of a Value: its type and text form.
type storedValue struct {
	Type uint8  `msgpack:"k"`
	Text string `msgpack:"v"`
}

// nodeRecord is the on-disk form of a content node. The path is the key.
type nodeRecord struct {
	PrimaryType string                 `msgpack:"t"`
	Mixins      []string               `msgpack:"m,omitempty"`
	Properties  map[string]storedValue `msgpack:"p"`
}

// encodeRecord serializes a node to MessagePack with a CRC32 checksum.
// Format: magic(1) + msgpack_data + crc32(4)
func encodeRecord(n *ContentNode) ([]byte, error) {
	rec := nodeRecord{
		PrimaryType: n.PrimaryType,
		Mixins:      n.Mixins,
		Properties:  make(map[string]storedValue, len(n.Properties)),
	}
	for name, v := range n.Properties {
		if !v.IsValid() {
			return nil, fmt.Errorf("repoql: property %q has no value", name)
		}
		rec.Properties[name] = storedValue{Type: uint8(v.Type()), Text: v.Text()}
	}
	raw, err := msgpack.Marshal(&rec)
	if err != nil {
		return nil, err
	}
	// magic(1) + data(N) + crc32(4)
	buf := make([]byte, 1+len(raw)+4)
	buf[0] = recordMagicCRC
	copy(buf[1:], raw)
	checksum := crc32.Checksum(buf[:1+len(raw)], crc32Table)
	binary.BigEndian.PutUint32(buf[1+len(raw):], checksum)
	return buf, nil
}

// decodeRecord verifies the checksum and rebuilds the node stored at path.
func decodeRecord(path string, data []byte) (*ContentNode, error) {
	if len(data) < 5 || data[0] != recordMagicCRC {
		return nil, fmt.Errorf("repoql: node %s: unknown record format", path)
	}
	payload := data[:len(data)-4]
	stored := binary.BigEndian.Uint32(data[len(data)-4:])
	actual := crc32.Checksum(payload, crc32Table)
	if stored != actual {
		return nil, fmt.Errorf("repoql: node %s: checksum mismatch (stored=%08x actual=%08x)", path, stored, actual)
	}
	var rec nodeRecord
	if err := msgpack.Unmarshal(payload[1:], &rec); err != nil {
		return nil, fmt.Errorf("repoql: node %s: %w", path, err)
	}
	n := &ContentNode{
		Path:        path,
		PrimaryType: rec.PrimaryType,
		Mixins:      rec.Mixins,
		Properties:  make(map[string]Value, len(rec.Properties)),
	}
	for name, sv := range rec.Properties {
		v, err := ParseValue(ScalarType(sv.Type), sv.Text)
		if err != nil {
			return nil, fmt.Errorf("repoql: node %s property %q: %w", path, name, err)
		}
		n.Properties[name] = v
	}
	return n, nil
}
