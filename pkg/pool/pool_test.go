package pool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectPool_PollCreatesWhenEmpty(t *testing.T) {
	created := 0
	p := New(2, func() *int { created++; v := created; return &v }, nil)

	a := p.Poll()
	b := p.Poll()
	c := p.Poll()

	assert.Equal(t, 3, created)
	assert.NotSame(t, a, b)
	assert.NotSame(t, b, c)

	stats := p.Stats()
	assert.Equal(t, int64(3), stats.Created)
	assert.Equal(t, int64(3), stats.Outstanding)
}

func TestObjectPool_OfferIsBounded(t *testing.T) {
	p := New(2, func() *int { return new(int) }, nil)

	objs := []*int{p.Poll(), p.Poll(), p.Poll()}
	assert.True(t, p.Offer(objs[0]))
	assert.True(t, p.Offer(objs[1]))
	assert.False(t, p.Offer(objs[2]), "third offer exceeds capacity and must be dropped")

	stats := p.Stats()
	assert.Equal(t, 2, stats.Idle)
	assert.Equal(t, int64(2), stats.Recycled)
	assert.Equal(t, int64(1), stats.Dropped)
	assert.Zero(t, stats.Outstanding)
}

func TestObjectPool_ReusesOffered(t *testing.T) {
	p := New(1, func() *int { return new(int) }, func(v *int) { *v = 0 })

	obj := p.Poll()
	*obj = 42
	require.True(t, p.Offer(obj))

	again := p.Poll()
	assert.Same(t, obj, again)
	assert.Zero(t, *again, "recycler must reset the object")
	assert.Equal(t, int64(1), p.Stats().Created)
}

func TestObjectPool_Concurrent(t *testing.T) {
	p := NewBufferPool(8, 64)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				buf := p.Poll()
				buf.Write([]byte("payload"))
				p.Offer(buf)
			}
		}()
	}
	wg.Wait()

	stats := p.Stats()
	assert.Zero(t, stats.Outstanding)
	assert.LessOrEqual(t, stats.Idle, 8)
}

func TestNew_PanicsOnInvalidArguments(t *testing.T) {
	assert.Panics(t, func() { New(0, func() int { return 0 }, nil) })
	assert.Panics(t, func() { New[int](1, nil, nil) })
	assert.Panics(t, func() { NewBufferPool(1, 0) })
}

func TestBuffer(t *testing.T) {
	buf := NewBuffer(8)
	assert.Equal(t, 8, buf.Cap())
	assert.Len(t, buf.Free(), 8)

	n := copy(buf.Free(), "abc")
	buf.Advance(n)
	assert.Equal(t, []byte("abc"), buf.Bytes())
	assert.Len(t, buf.Free(), 5)

	assert.Equal(t, 5, buf.Write([]byte("defghijk")), "write truncates at capacity")
	assert.Equal(t, "abcdefgh", string(buf.Bytes()))

	buf.Reset()
	assert.Zero(t, buf.Len())
	assert.Equal(t, 8, buf.Cap())
}

func TestBufferPool_ResetsOnOffer(t *testing.T) {
	p := NewBufferPool(1, 16)

	buf := p.Poll()
	buf.Write([]byte("dirty"))
	p.Offer(buf)

	again := p.Poll()
	assert.Same(t, buf, again)
	assert.Zero(t, again.Len())
}
