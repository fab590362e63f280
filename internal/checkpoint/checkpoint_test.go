package checkpoint_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/jmerrifield20/forkledger/internal/checkpoint"
)

func mustAppend(t *testing.T, s *checkpoint.Sequence, block, value int64) {
	t.Helper()
	if err := s.Append(uint64(block), big.NewInt(value)); err != nil {
		t.Fatalf("Append(%d, %d): %v", block, value, err)
	}
}

func TestAt_emptyIsUnset(t *testing.T) {
	var s checkpoint.Sequence
	if v, ok := s.At(100); ok {
		t.Errorf("expected unset on empty sequence, got %v", v)
	}
}

func TestAt_beforeFirstIsUnset(t *testing.T) {
	var s checkpoint.Sequence
	mustAppend(t, &s, 10, 5)

	if _, ok := s.At(9); ok {
		t.Error("expected unset before the first checkpoint")
	}
	v, ok := s.At(10)
	if !ok || v.Int64() != 5 {
		t.Errorf("At(10): got %v, %v; want 5, true", v, ok)
	}
}

func TestAt_recordedZeroIsSet(t *testing.T) {
	var s checkpoint.Sequence
	mustAppend(t, &s, 3, 7)
	mustAppend(t, &s, 4, 0)

	v, ok := s.At(4)
	if !ok {
		t.Fatal("recorded zero reported as unset")
	}
	if v.Sign() != 0 {
		t.Errorf("At(4): got %v, want 0", v)
	}
}

func TestAt_betweenCheckpointsReturnsEarlier(t *testing.T) {
	var s checkpoint.Sequence
	for i, b := range []int64{2, 5, 9, 14, 20, 31} {
		mustAppend(t, &s, b, int64(i+1)*10)
	}

	cases := []struct {
		block uint64
		want  int64
	}{
		{2, 10}, {3, 10}, {4, 10},
		{5, 20}, {8, 20},
		{9, 30}, {13, 30},
		{14, 40}, {19, 40},
		{20, 50}, {30, 50},
		{31, 60}, {1000, 60},
	}
	for _, tc := range cases {
		v, ok := s.At(tc.block)
		if !ok {
			t.Errorf("At(%d): unexpectedly unset", tc.block)
			continue
		}
		if v.Int64() != tc.want {
			t.Errorf("At(%d): got %v, want %d", tc.block, v, tc.want)
		}
	}
}

func TestAppend_sameBlockOverwrites(t *testing.T) {
	var s checkpoint.Sequence
	mustAppend(t, &s, 7, 1)
	mustAppend(t, &s, 7, 2)
	mustAppend(t, &s, 7, 3)

	if s.Len() != 1 {
		t.Fatalf("expected a single checkpoint for one block, got %d", s.Len())
	}
	v, _ := s.At(7)
	if v.Int64() != 3 {
		t.Errorf("At(7): got %v, want 3 (last write wins)", v)
	}
}

func TestAppend_outOfOrderRejected(t *testing.T) {
	var s checkpoint.Sequence
	mustAppend(t, &s, 10, 1)

	err := s.Append(9, big.NewInt(2))
	if !errors.Is(err, checkpoint.ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("rejected append changed the sequence: len=%d", s.Len())
	}
}

func TestAppend_negativeRejected(t *testing.T) {
	var s checkpoint.Sequence
	if err := s.Append(1, big.NewInt(-1)); err == nil {
		t.Error("expected error for negative value")
	}
	if err := s.Append(1, nil); err == nil {
		t.Error("expected error for nil value")
	}
}

func TestValuesAreNotAliased(t *testing.T) {
	var s checkpoint.Sequence
	in := big.NewInt(42)
	if err := s.Append(1, in); err != nil {
		t.Fatal(err)
	}
	in.SetInt64(0)

	got, _ := s.At(1)
	if got.Int64() != 42 {
		t.Fatalf("stored value followed caller mutation: %v", got)
	}

	got.SetInt64(99)
	again, _ := s.Latest()
	if again.Int64() != 42 {
		t.Errorf("returned value aliased internal state: %v", again)
	}
}

func TestArbitraryPrecision(t *testing.T) {
	var s checkpoint.Sequence
	huge, _ := new(big.Int).SetString("340282366920938463463374607431768211457", 10) // 2^128 + 1
	if err := s.Append(1, huge); err != nil {
		t.Fatal(err)
	}
	got, _ := s.At(5)
	if got.Cmp(huge) != 0 {
		t.Errorf("got %v, want %v", got, huge)
	}
}

func TestFirstLastEntries(t *testing.T) {
	var s checkpoint.Sequence
	if _, ok := s.First(); ok {
		t.Error("First on empty sequence reported ok")
	}
	mustAppend(t, &s, 4, 1)
	mustAppend(t, &s, 8, 2)

	if b, _ := s.First(); b != 4 {
		t.Errorf("First: got %d, want 4", b)
	}
	if b, _ := s.LastBlock(); b != 8 {
		t.Errorf("LastBlock: got %d, want 8", b)
	}

	entries := s.Entries()
	if len(entries) != 2 || entries[1].Block != 8 || entries[1].Value.Int64() != 2 {
		t.Errorf("Entries: unexpected %+v", entries)
	}
	entries[0].Value.SetInt64(100)
	if v, _ := s.At(4); v.Int64() != 1 {
		t.Error("Entries returned aliased values")
	}
}
