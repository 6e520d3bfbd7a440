// Package crdt implements a replicated growable array (RGA) over runes,
// the conflict-free structure backing collaborative documents. Updates
// are lists of insert/delete operations with a compact binary encoding;
// a snapshot is a full-state update, so applying it to an empty
// document reproduces the text.
package crdt

import (
	"fmt"
	"strings"
)

// NodeID identifies one inserted rune: the originating site plus a
// per-site sequence number.
type NodeID struct {
	Site string
	Seq  uint64
}

// rootID anchors inserts at the head of the document.
var rootID = NodeID{}

// IsRoot reports whether the ID is the document head anchor.
func (id NodeID) IsRoot() bool { return id.Site == "" && id.Seq == 0 }

// less orders concurrent siblings: higher (seq, site) integrates first,
// so every replica interleaves concurrent runs the same way.
func (id NodeID) less(o NodeID) bool {
	if id.Seq != o.Seq {
		return id.Seq < o.Seq
	}
	return id.Site < o.Site
}

type node struct {
	id      NodeID
	after   NodeID
	ch      rune
	deleted bool
}

// Doc is one replica of a collaborative text document.
// seq is a Lamport clock: it advances past every observed operation,
// so an insert made after seeing a node always orders ahead of it.
type Doc struct {
	site  string
	seq   uint64
	nodes []*node          // document order, tombstones included
	index map[NodeID]int   // id → position in nodes
	// pending holds inserts whose anchor has not arrived yet,
	// keyed by the missing anchor ID.
	pending map[NodeID][]Op
}

// NewDoc creates an empty replica owned by the given site.
func NewDoc(site string) *Doc {
	return &Doc{
		site:    site,
		index:   make(map[NodeID]int),
		pending: make(map[NodeID][]Op),
	}
}

// Text returns the current document text.
func (d *Doc) Text() string {
	var b strings.Builder
	for _, n := range d.nodes {
		if !n.deleted {
			b.WriteRune(n.ch)
		}
	}
	return b.String()
}

// Len returns the visible rune count.
func (d *Doc) Len() int {
	count := 0
	for _, n := range d.nodes {
		if !n.deleted {
			count++
		}
	}
	return count
}

// InsertAt inserts text at the visible rune index and returns the
// update to broadcast. Index is clamped to the document bounds.
func (d *Doc) InsertAt(index int, text string) Update {
	anchor := d.anchorBefore(index)
	ops := make([]Op, 0, len(text))
	for _, ch := range text {
		d.seq++
		op := Op{
			Kind:  OpInsert,
			ID:    NodeID{Site: d.site, Seq: d.seq},
			After: anchor,
			Ch:    ch,
		}
		d.integrateInsert(op)
		ops = append(ops, op)
		anchor = op.ID
	}
	return Update(ops)
}

// DeleteAt tombstones n visible runes starting at index and returns the
// update to broadcast.
func (d *Doc) DeleteAt(index, n int) Update {
	var ops []Op
	visible := -1
	for _, nd := range d.nodes {
		if nd.deleted {
			continue
		}
		visible++
		if visible < index {
			continue
		}
		if len(ops) == n {
			break
		}
		nd.deleted = true
		ops = append(ops, Op{Kind: OpDelete, ID: nd.id})
	}
	return Update(ops)
}

// Apply integrates a remote update. Inserts whose anchor is unknown are
// buffered until the anchor arrives; deletes for unknown nodes are
// dropped (the insert will carry its own delete when re-synced).
func (d *Doc) Apply(u Update) error {
	for _, op := range u {
		switch op.Kind {
		case OpInsert:
			d.applyInsert(op)
		case OpDelete:
			if pos, ok := d.index[op.ID]; ok {
				d.nodes[pos].deleted = true
			}
		default:
			return fmt.Errorf("unknown op kind %d", op.Kind)
		}
	}
	return nil
}

// Snapshot returns a full-state update: every node in document order,
// followed by deletes for the tombstones.
func (d *Doc) Snapshot() Update {
	ops := make([]Op, 0, len(d.nodes))
	var deletes []Op
	for _, n := range d.nodes {
		ops = append(ops, Op{Kind: OpInsert, ID: n.id, After: n.after, Ch: n.ch})
		if n.deleted {
			deletes = append(deletes, Op{Kind: OpDelete, ID: n.id})
		}
	}
	return Update(append(ops, deletes...))
}

// anchorBefore returns the ID of the visible node preceding index, or
// the root anchor for index 0.
func (d *Doc) anchorBefore(index int) NodeID {
	if index <= 0 {
		return rootID
	}
	visible := 0
	for _, n := range d.nodes {
		if n.deleted {
			continue
		}
		visible++
		if visible == index {
			return n.id
		}
	}
	if len(d.nodes) > 0 {
		return d.nodes[len(d.nodes)-1].id
	}
	return rootID
}

func (d *Doc) applyInsert(op Op) {
	if _, ok := d.index[op.ID]; ok {
		return // duplicate delivery
	}
	if !op.After.IsRoot() {
		if _, ok := d.index[op.After]; !ok {
			d.pending[op.After] = append(d.pending[op.After], op)
			return
		}
	}
	d.integrateInsert(op)
	// Drain inserts that were waiting for this node.
	if waiting, ok := d.pending[op.ID]; ok {
		delete(d.pending, op.ID)
		for _, w := range waiting {
			d.applyInsert(w)
		}
	}
	// Advance the Lamport clock past every observed op.
	if op.ID.Seq > d.seq {
		d.seq = op.ID.Seq
	}
}

// integrateInsert places op after its anchor, skipping over concurrent
// siblings with larger IDs so all replicas converge on one order.
func (d *Doc) integrateInsert(op Op) {
	pos := 0
	if !op.After.IsRoot() {
		pos = d.index[op.After] + 1
	}
	for pos < len(d.nodes) {
		sibling := d.nodes[pos]
		if sibling.after == op.After && op.ID.less(sibling.id) {
			pos++
			continue
		}
		// Also skip the subtree of a winning sibling: any node anchored
		// at or after a node we skipped stays with its anchor.
		if d.descendsFromSkipped(sibling, op.After, op.ID, pos) {
			pos++
			continue
		}
		break
	}
	n := &node{id: op.ID, after: op.After, ch: op.Ch}
	d.nodes = append(d.nodes, nil)
	copy(d.nodes[pos+1:], d.nodes[pos:])
	d.nodes[pos] = n
	for i := pos; i < len(d.nodes); i++ {
		d.index[d.nodes[i].id] = i
	}
}

// descendsFromSkipped reports whether the node at pos belongs to the
// subtree of a sibling that integrated before op (and so must not be
// split by op).
func (d *Doc) descendsFromSkipped(n *node, anchor NodeID, id NodeID, pos int) bool {
	cur := n
	for {
		if cur.after == anchor {
			return id.less(cur.id)
		}
		parentPos, ok := d.index[cur.after]
		if !ok || parentPos >= pos {
			return false
		}
		cur = d.nodes[parentPos]
	}
}
