package heap

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestReuseFreedBlock allocates 100 then 200 bytes, frees the first and
// allocates 100 again: the freed block must come back.
func TestReuseFreedBlock(t *testing.T) {
	h, src := newTestHeap(t, CoalesceAll)

	first := mustAlloc(t, h, 100, 0)
	second := mustAlloc(t, h, 200, 0)
	h.Free(first)
	third := mustAlloc(t, h, 100, 0)

	assert.Equal(t, addrOf(first), addrOf(third), "freed block must be reused")
	assert.NotEqual(t, addrOf(second), addrOf(third))
	assert.Equal(t, int32(1), src.calls.Load(), "everything fits in the first region")
	require.NoError(t, h.Verify())
}

func TestExactFitDoesNotGrow(t *testing.T) {
	h, src := newTestHeap(t, CoalesceAll)

	a := mustAlloc(t, h, 96, 0)
	guard := mustAlloc(t, h, 64, 0)
	h.Free(a)
	calls := src.calls.Load()

	b := mustAlloc(t, h, 96, 0)
	assert.Equal(t, addrOf(a), addrOf(b))
	assert.Equal(t, calls, src.calls.Load(), "exact fit must not touch the memory source")

	st := h.Stats()
	assert.Equal(t, 1, st.ExactFits)
	h.Free(guard)
	h.Free(b)
	require.NoError(t, h.Verify())
}

func TestExactFitShortCircuitsBestFit(t *testing.T) {
	h, _ := newTestHeap(t, CoalesceFreed)

	big := mustAlloc(t, h, 512, 0)
	sep1 := mustAlloc(t, h, 32, 0)
	exact := mustAlloc(t, h, 128, 0)
	sep2 := mustAlloc(t, h, 32, 0)
	h.Free(big)
	h.Free(exact)

	got := mustAlloc(t, h, 128, 0)
	assert.Equal(t, addrOf(exact), addrOf(got), "exact match must win over a larger block")

	h.Free(sep1)
	h.Free(sep2)
	h.Free(got)
	require.NoError(t, h.Verify())
}

func TestBestFitPicksSmallestLargerBlock(t *testing.T) {
	h, _ := newTestHeap(t, CoalesceFreed)

	large := mustAlloc(t, h, 1024, 0)
	sep1 := mustAlloc(t, h, 32, 0)
	medium := mustAlloc(t, h, 256, 0)
	sep2 := mustAlloc(t, h, 32, 0)
	h.Free(large)
	h.Free(medium)
	before := h.Stats().BestFits

	got := mustAlloc(t, h, 200, 0)
	assert.Equal(t, addrOf(medium), addrOf(got), "smallest block larger than the request must win")
	assert.Equal(t, before+1, h.Stats().BestFits)

	h.Free(sep1)
	h.Free(sep2)
	h.Free(got)
	require.NoError(t, h.Verify())
}

func TestCoalesceAdjacentEitherOrder(t *testing.T) {
	tests := []struct {
		name      string
		firstFree int
	}{
		{"lower then upper", 0},
		{"upper then lower", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, src := newTestHeap(t, CoalesceAll)

			pair := [2][]byte{mustAlloc(t, h, 256, 0), mustAlloc(t, h, 256, 0)}
			guard := mustAlloc(t, h, 256, 0)
			require.Equal(t, addrOf(pair[0])+256+headerSize, addrOf(pair[1]), "pair must be contiguous")

			h.Free(pair[tt.firstFree])
			h.Free(pair[1-tt.firstFree])
			calls := src.calls.Load()

			merged := mustAlloc(t, h, 2*256+headerSize, 0)
			assert.Equal(t, addrOf(pair[0]), addrOf(merged), "merged block starts at the lower half")
			assert.Equal(t, calls, src.calls.Load(), "combined size must fit without growing")
			assert.GreaterOrEqual(t, h.Stats().Merges, 1)

			h.Free(guard)
			h.Free(merged)
			require.NoError(t, h.Verify())
		})
	}
}

// TestCoalesceFreedIsForwardOnly documents the asymmetry of walking only
// from the freed block: a block never merges into its predecessor.
func TestCoalesceFreedIsForwardOnly(t *testing.T) {
	h, _ := newTestHeap(t, CoalesceFreed)

	lo := mustAlloc(t, h, 256, 0)
	hi := mustAlloc(t, h, 256, 0)
	guard := mustAlloc(t, h, 256, 0)

	h.Free(lo)
	h.Free(hi)

	loBlock := blockFor(t, h, lo)
	assert.True(t, loBlock.Free)
	assert.Equal(t, uintptr(256), loBlock.DataLen, "freeing the upper half must not merge backward")

	// Freeing in the other order merges forward from the lower half.
	h2, _ := newTestHeap(t, CoalesceFreed)
	lo2 := mustAlloc(t, h2, 256, 0)
	hi2 := mustAlloc(t, h2, 256, 0)
	guard2 := mustAlloc(t, h2, 256, 0)
	h2.Free(hi2)
	h2.Free(lo2)
	assert.Equal(t, 2*256+headerSize, blockFor(t, h2, lo2).DataLen)

	h.Free(guard)
	h2.Free(guard2)
	require.NoError(t, h.Verify())
	require.NoError(t, h2.Verify())
}

func TestSplitLeavesNoSliver(t *testing.T) {
	h, _ := newTestHeap(t, CoalesceFreed)

	victim := mustAlloc(t, h, 256, 0)
	guard := mustAlloc(t, h, 32, 0)
	h.Free(victim)

	// Leftover of exactly one header is kept rather than split off.
	got := mustAlloc(t, h, 256-headerSize, 0)
	assert.Equal(t, addrOf(victim), addrOf(got))
	assert.Equal(t, 256, cap(got), "leftover of one header stays with the block")
	h.Free(got)

	// Leftover of two headers becomes a free block with one header of data.
	got = mustAlloc(t, h, 256-2*headerSize, 0)
	assert.Equal(t, int(256-2*headerSize), cap(got))
	tail := blockFor(t, h, got).Addr + headerSize + uintptr(cap(got))
	var found bool
	for _, b := range blocks(h) {
		if b.Addr == tail {
			found = true
			assert.True(t, b.Free)
			assert.Equal(t, headerSize, b.DataLen)
		}
	}
	assert.True(t, found, "split remainder must be registered")

	h.Free(got)
	h.Free(guard)
	require.NoError(t, h.Verify())
}

func TestGrowRegistersExcess(t *testing.T) {
	h, src := newTestHeap(t, CoalesceAll)

	p := mustAlloc(t, h, 100, 0)
	require.Equal(t, []uintptr{4096}, src.sizes)
	n, _ := normalize(100)

	bs := blocks(h)
	require.Len(t, bs, 2, "new block plus excess")
	assert.Equal(t, addrOf(p)-headerSize, bs[0].Addr, "new block is the registry head")
	assert.False(t, bs[0].Free)
	assert.Equal(t, n, bs[0].DataLen)
	assert.True(t, bs[1].Free)
	assert.Equal(t, 4096-2*headerSize-n, bs[1].DataLen)
	require.NoError(t, h.Verify())
}

func TestGrowFoldsTinyExcess(t *testing.T) {
	h, _ := newTestHeap(t, CoalesceAll)

	// need = n + header leaves exactly one header of the page unused.
	p := mustAlloc(t, h, 4096-2*headerSize, 0)
	assert.Equal(t, int(4096-headerSize), cap(p), "excess of one header is folded into the block")
	assert.Len(t, blocks(h), 1)
	require.NoError(t, h.Verify())
}

func TestMultiPageRequest(t *testing.T) {
	h, src := newTestHeap(t, CoalesceAll)

	p := mustAlloc(t, h, 3*4096+1, 0)
	require.Equal(t, []uintptr{4 * 4096}, src.sizes)
	fill(p, 9)
	_, ok := checkPattern(p, 9)
	assert.True(t, ok)
	h.Free(p)
	require.NoError(t, h.Verify())
}

func TestZeroSizeAllocationsAreDistinct(t *testing.T) {
	h, _ := newTestHeap(t, CoalesceAll)

	a := mustAlloc(t, h, 0, 0)
	b := mustAlloc(t, h, 0, 0)
	assert.NotEqual(t, addrOf(a), addrOf(b))
	assert.Equal(t, int(headerSize), cap(a))

	h.Free(a)
	h.Free(b)
	assert.Zero(t, h.Stats().InUseBytes)
}

func TestFreeNilIsNoop(t *testing.T) {
	h, _ := newTestHeap(t, CoalesceAll)
	h.Free(nil)
	h.FreePtr(nil)
	assert.Zero(t, h.Stats().FreeCalls)
}

func TestFreeAcceptsReslice(t *testing.T) {
	h, _ := newTestHeap(t, CoalesceAll)
	p := mustAlloc(t, h, 64, 0)
	h.Free(p[:0])
	assert.True(t, blockFor(t, h, p).Free)
}

func TestAllocPtr(t *testing.T) {
	h, _ := newTestHeap(t, CoalesceAll)

	p, n, err := h.AllocPtr(10, 16)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, headerSize, n)
	assert.Zero(t, uintptr(p)%16)
	h.FreePtr(p)

	p, n, err = h.AllocPtr(8, 4096*2)
	require.ErrorIs(t, err, ErrBadAlign)
	assert.Nil(t, p)
	assert.Zero(t, n)
}

func TestRoundTripUnderChurn(t *testing.T) {
	h, _ := newTestHeap(t, CoalesceAll)
	rng := rand.New(rand.NewPCG(1, 2))

	anchor := mustAlloc(t, h, 777, 0)
	fill(anchor, 0x5A)

	var live [][]byte
	for i := range 2000 {
		if len(live) > 0 && rng.IntN(3) == 0 {
			j := rng.IntN(len(live))
			h.Free(live[j])
			live = removeAt(live, j)
			continue
		}
		p := mustAlloc(t, h, uintptr(rng.IntN(2048)), 0)
		fill(p, byte(i))
		live = append(live, p)
	}

	off, ok := checkPattern(anchor, 0x5A)
	require.True(t, ok, "anchor corrupted at byte %d", off)
	h.Free(anchor)
	for _, p := range live {
		h.Free(p)
	}
	assert.Zero(t, h.Stats().InUseBytes)
	require.NoError(t, h.Verify())
}

func TestNoOverlapRandomized(t *testing.T) {
	for _, mode := range []CoalesceMode{CoalesceAll, CoalesceFreed} {
		t.Run(mode.String(), func(t *testing.T) {
			h, _ := newTestHeap(t, mode)
			rng := rand.New(rand.NewPCG(42, uint64(mode)))
			aligns := []uintptr{0, 8, 16, 32, 64, 128, 512, 4096}

			type alloc struct {
				p    []byte
				seed byte
			}
			var live []alloc
			steps := 3000
			if testing.Short() {
				steps = 500
			}
			for i := range steps {
				if len(live) > 0 && rng.IntN(5) < 2 {
					j := rng.IntN(len(live))
					off, ok := checkPattern(live[j].p, live[j].seed)
					require.True(t, ok, "step %d: allocation corrupted at byte %d", i, off)
					h.Free(live[j].p)
					live[j] = live[len(live)-1]
					live = live[:len(live)-1]
				} else {
					align := aligns[rng.IntN(len(aligns))]
					p := mustAlloc(t, h, uintptr(rng.IntN(5000)), align)
					if align > 1 {
						require.Zero(t, addrOf(p)%align, "step %d: misaligned for %d", i, align)
					}
					seed := byte(rng.Uint32())
					fill(p, seed)
					live = append(live, alloc{p, seed})
				}

				if i%250 == 0 {
					ps := make([][]byte, len(live))
					for k, a := range live {
						ps[k] = a.p
					}
					requireNoOverlap(t, ps)
					require.NoError(t, h.Verify(), "step %d", i)
				}
			}
		})
	}
}

func TestAllocLogsGrowth(t *testing.T) {
	var out bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h, err := New(&Config{Logger: log})
	require.NoError(t, err)

	mustAlloc(t, h, 64, 0)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.Split(out.Bytes(), []byte("\n"))[0], &rec))
	assert.Equal(t, "grow", rec["msg"])
	assert.EqualValues(t, 4096, rec["mapped"])
}

func TestAllocLogsSplit(t *testing.T) {
	var out bytes.Buffer
	log := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h, err := New(&Config{Logger: log})
	require.NoError(t, err)

	mustAlloc(t, h, 64, 0)
	mustAlloc(t, h, 64, 0)

	assert.Contains(t, out.String(), "msg=split")
}
