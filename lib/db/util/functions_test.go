package util

import (
	"fmt"
	"testing"
)

func TestHashStringIsSeeded(t *testing.T) {
	if HashString("customers", 1) != HashString("customers", 1) {
		t.Fatal("same key and seed must hash equally")
	}
	if HashString("customers", 1) == HashString("customers", 2) {
		t.Fatal("different seeds should change the hash")
	}
}

func TestHashStringSpreadsKeys(t *testing.T) {
	const shards = 16
	seed := GenerateSeed()
	counts := make([]int, shards)
	for i := 0; i < 16000; i++ {
		counts[uint64(HashString(fmt.Sprintf("kiln:pieces:%d", i), seed))%shards]++
	}
	for shard, n := range counts {
		// expected 1000 per shard
		if n < 700 || n > 1300 {
			t.Errorf("shard %d got %d keys", shard, n)
		}
	}
}
