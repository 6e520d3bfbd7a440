package crdt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// OpKind discriminates update operations.
type OpKind byte

const (
	OpInsert OpKind = 1
	OpDelete OpKind = 2
)

// Op is one operation in an update.
type Op struct {
	Kind  OpKind
	ID    NodeID
	After NodeID // insert only
	Ch    rune   // insert only
}

// Update is an ordered list of operations. The binary form is opaque
// to everything outside this package: peers apply the identical bytes.
type Update []Op

// updateMagic guards against feeding arbitrary frames into Apply.
const updateMagic = 0xC5

// Encode serializes the update to its wire form.
func (u Update) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte(updateMagic)
	writeUvarint(&buf, uint64(len(u)))
	for _, op := range u {
		buf.WriteByte(byte(op.Kind))
		writeID(&buf, op.ID)
		if op.Kind == OpInsert {
			writeID(&buf, op.After)
			writeUvarint(&buf, uint64(op.Ch))
		}
	}
	return buf.Bytes()
}

// DecodeUpdate parses the wire form produced by Encode.
func DecodeUpdate(data []byte) (Update, error) {
	r := bytes.NewReader(data)
	magic, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("empty update")
	}
	if magic != updateMagic {
		return nil, fmt.Errorf("bad update header 0x%02x", magic)
	}
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("read op count: %w", err)
	}
	ops := make(Update, 0, count)
	for i := uint64(0); i < count; i++ {
		kindByte, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}
		op := Op{Kind: OpKind(kindByte)}
		if op.ID, err = readID(r); err != nil {
			return nil, fmt.Errorf("op %d id: %w", i, err)
		}
		switch op.Kind {
		case OpInsert:
			if op.After, err = readID(r); err != nil {
				return nil, fmt.Errorf("op %d after: %w", i, err)
			}
			ch, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, fmt.Errorf("op %d rune: %w", i, err)
			}
			op.Ch = rune(ch)
		case OpDelete:
			// id only
		default:
			return nil, fmt.Errorf("op %d: unknown kind %d", i, kindByte)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeID(buf *bytes.Buffer, id NodeID) {
	writeUvarint(buf, uint64(len(id.Site)))
	buf.WriteString(id.Site)
	writeUvarint(buf, id.Seq)
}

func readID(r *bytes.Reader) (NodeID, error) {
	siteLen, err := binary.ReadUvarint(r)
	if err != nil {
		return NodeID{}, err
	}
	if siteLen > 1024 {
		return NodeID{}, fmt.Errorf("site name too long: %d", siteLen)
	}
	site := make([]byte, siteLen)
	if _, err := io.ReadFull(r, site); err != nil {
		return NodeID{}, err
	}
	seq, err := binary.ReadUvarint(r)
	if err != nil {
		return NodeID{}, err
	}
	return NodeID{Site: string(site), Seq: seq}, nil
}
