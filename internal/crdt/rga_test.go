package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalInsertAndText(t *testing.T) {
	d := NewDoc("a1")
	d.InsertAt(0, "hello")
	assert.Equal(t, "hello", d.Text())

	d.InsertAt(5, " world")
	assert.Equal(t, "hello world", d.Text())

	d.InsertAt(0, ">> ")
	assert.Equal(t, ">> hello world", d.Text())
	assert.Equal(t, 14, d.Len())
}

func TestDelete(t *testing.T) {
	d := NewDoc("a1")
	d.InsertAt(0, "hello world")
	d.DeleteAt(5, 6)
	assert.Equal(t, "hello", d.Text())

	// Tombstones stay behind but never show up in the text.
	d.InsertAt(5, "!")
	assert.Equal(t, "hello!", d.Text())
}

func TestUpdateRoundTrip(t *testing.T) {
	a := NewDoc("a1")
	u := a.InsertAt(0, "init")

	data := u.Encode()
	decoded, err := DecodeUpdate(data)
	require.NoError(t, err)

	b := NewDoc("a2")
	require.NoError(t, b.Apply(decoded))
	assert.Equal(t, "init", b.Text())
}

func TestSnapshotReproducesText(t *testing.T) {
	a := NewDoc("a1")
	a.InsertAt(0, "collaborative text")
	a.DeleteAt(0, 4) // "aborative text"
	a.InsertAt(0, "el") // "elaborative text"

	snap := a.Snapshot().Encode()
	decoded, err := DecodeUpdate(snap)
	require.NoError(t, err)

	b := NewDoc("a2")
	require.NoError(t, b.Apply(decoded))
	assert.Equal(t, a.Text(), b.Text())
}

func TestPeerConvergenceSequential(t *testing.T) {
	a := NewDoc("a1")
	b := NewDoc("a2")

	relay := func(from, to *Doc, u Update) {
		decoded, err := DecodeUpdate(u.Encode())
		require.NoError(t, err)
		require.NoError(t, to.Apply(decoded))
	}

	u1 := a.InsertAt(0, "init")
	relay(a, b, u1)

	u2 := b.InsertAt(0, "X")
	relay(b, a, u2)

	assert.Equal(t, "Xinit", a.Text())
	assert.Equal(t, "Xinit", b.Text())
}

func TestConcurrentInsertsConverge(t *testing.T) {
	a := NewDoc("a1")
	b := NewDoc("a2")

	base := a.InsertAt(0, "ab")
	require.NoError(t, b.Apply(mustDecode(t, base)))

	// Both insert at index 1 without seeing each other.
	ua := a.InsertAt(1, "X")
	ub := b.InsertAt(1, "Y")

	require.NoError(t, a.Apply(mustDecode(t, ub)))
	require.NoError(t, b.Apply(mustDecode(t, ua)))

	assert.Equal(t, a.Text(), b.Text(), "replicas must converge")
	assert.Len(t, a.Text(), 4)
}

func TestOutOfOrderDelivery(t *testing.T) {
	a := NewDoc("a1")
	u1 := a.InsertAt(0, "a")
	u2 := a.InsertAt(1, "b")
	u3 := a.InsertAt(2, "c")

	b := NewDoc("a2")
	// Deliver later updates first; they are buffered until the anchor arrives.
	require.NoError(t, b.Apply(mustDecode(t, u3)))
	require.NoError(t, b.Apply(mustDecode(t, u2)))
	assert.Equal(t, "", b.Text())
	require.NoError(t, b.Apply(mustDecode(t, u1)))
	assert.Equal(t, "abc", b.Text())
}

func TestDuplicateDeliveryIsIdempotent(t *testing.T) {
	a := NewDoc("a1")
	u := a.InsertAt(0, "dup")

	b := NewDoc("a2")
	require.NoError(t, b.Apply(mustDecode(t, u)))
	require.NoError(t, b.Apply(mustDecode(t, u)))
	assert.Equal(t, "dup", b.Text())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := DecodeUpdate(nil)
	assert.Error(t, err)
	_, err = DecodeUpdate([]byte{0x00, 0x01, 0x02})
	assert.Error(t, err)
}

func TestUnicodeContent(t *testing.T) {
	a := NewDoc("a1")
	a.InsertAt(0, "héllo 世界")
	snap := a.Snapshot()

	b := NewDoc("a2")
	require.NoError(t, b.Apply(mustDecode(t, snap)))
	assert.Equal(t, "héllo 世界", b.Text())
}

func mustDecode(t *testing.T, u Update) Update {
	t.Helper()
	decoded, err := DecodeUpdate(u.Encode())
	require.NoError(t, err)
	return decoded
}
