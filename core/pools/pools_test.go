package pools

import "testing"

func TestBytePoolGet(t *testing.T) {
	bp := NewBytePool()

	tests := []struct {
		size    int
		wantCap int
	}{
		{100, 512},
		{1024, 1024},
		{1025, 4096},
		{16384, 16384},
		{20000, 20000},
	}

	for _, tt := range tests {
		buf := bp.Get(tt.size)
		if len(buf) != tt.size {
			t.Errorf("Get(%d) len = %d", tt.size, len(buf))
		}
		if cap(buf) != tt.wantCap {
			t.Errorf("Get(%d) cap = %d, want %d", tt.size, cap(buf), tt.wantCap)
		}
		bp.Put(buf)
	}
}

func TestBytePoolPutRestoresLength(t *testing.T) {
	bp := NewBytePoolWithSizes([]int{8})

	buf := bp.Get(3)
	copy(buf, "abc")
	bp.Put(buf)

	again := bp.Get(8)
	if len(again) != 8 || cap(again) != 8 {
		t.Errorf("len=%d cap=%d, want 8/8", len(again), cap(again))
	}
}

func TestBufferPool(t *testing.T) {
	bp := NewBufferPool()

	small := bp.Get(100)
	if len(*small) != 0 || cap(*small) < SmallBufferSize {
		t.Fatalf("small buffer len=%d cap=%d", len(*small), cap(*small))
	}
	*small = append(*small, "GET / HTTP/1.1\r\n"...)
	bp.Put(small)

	large := bp.Get(LargeBufferSize)
	if cap(*large) < LargeBufferSize {
		t.Errorf("large buffer cap = %d", cap(*large))
	}

	grown := make([]byte, 0, 4*LargeBufferSize)
	bp.Put(&grown)
	bp.Put(nil)

	stats := bp.Stats()
	if stats.TotalGets != 2 || stats.SmallHits != 1 || stats.LargeHits != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", stats.Dropped)
	}
}
