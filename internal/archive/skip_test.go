// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import "testing"

func TestSkip(t *testing.T) {
	granularity := int64(EntriesPerSlot + 1)

	cases := []struct {
		blocks int64
		want   int64
	}{
		{blocks: 0, want: 1},
		{blocks: 1, want: 1},
		{blocks: granularity * IndexesPerEntry, want: 1},
		{blocks: granularity*IndexesPerEntry + 1, want: 2},
		{blocks: granularity * IndexesPerEntry * (CachedMetadataBlocks - 1), want: CachedMetadataBlocks - 1},
		{blocks: granularity * IndexesPerEntry * CachedMetadataBlocks * 100, want: CachedMetadataBlocks - 1},
	}

	for _, c := range cases {
		got := Skip(c.blocks)
		if got != c.want {
			t.Errorf("Skip(%d) = %d, want %d", c.blocks, got, c.want)
		}
		if got < 1 || got > CachedMetadataBlocks-1 {
			t.Errorf("Skip(%d) = %d out of bounds [1, %d]", c.blocks, got, CachedMetadataBlocks-1)
		}
	}
}

func TestSkipMonotonic(t *testing.T) {
	prev := Skip(1)
	for blocks := int64(1); blocks < 1_000_000; blocks += 997 {
		got := Skip(blocks)
		if got < prev {
			t.Fatalf("Skip is not monotonic: Skip(%d) = %d < previous %d", blocks, got, prev)
		}
		prev = got
	}
}
