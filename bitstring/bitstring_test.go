package bitstring

import "testing"

func TestEmptySibling(t *testing.T) {
	if _, err := Empty().Sibling(); err != ErrEmpty {
		t.Fatalf("Sibling() on empty = %v, want ErrEmpty", err)
	}
}

func TestAppendedAndBit(t *testing.T) {
	b := Empty().Appended(1).Appended(0).Appended(1)
	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}
	want := []byte{1, 0, 1}
	for i, w := range want {
		if b.Bit(i) != w {
			t.Fatalf("Bit(%d) = %d, want %d", i, b.Bit(i), w)
		}
	}
	if b.String() != "101" {
		t.Fatalf("String() = %q, want %q", b.String(), "101")
	}
}

func TestSibling(t *testing.T) {
	b := FromBits(1, 1, 0)
	s, err := b.Sibling()
	if err != nil {
		t.Fatalf("Sibling() error: %v", err)
	}
	if s.String() != "111" {
		t.Fatalf("Sibling() = %q, want %q", s.String(), "111")
	}
	// Sibling of sibling restores the original.
	s2, err := s.Sibling()
	if err != nil {
		t.Fatalf("Sibling() error: %v", err)
	}
	if !s2.Equal(b) {
		t.Fatalf("Sibling(Sibling(b)) != b")
	}
}

func TestCompareLengthFirst(t *testing.T) {
	short := FromBits(1, 1, 1, 1)
	long := FromBits(0, 0, 0, 0, 0)
	if !short.Less(long) {
		t.Fatal("shorter string with higher bits should sort before a longer string of zeros")
	}
}

func TestCompareBitwise(t *testing.T) {
	a := FromBits(0, 1, 0)
	b := FromBits(0, 1, 1)
	if !a.Less(b) {
		t.Fatal("expected a < b")
	}
	if b.Less(a) {
		t.Fatal("expected !(b < a)")
	}
}

func TestHasPrefix(t *testing.T) {
	full := FromBits(1, 0, 1, 1, 0)
	prefix := FromBits(1, 0, 1)
	if !full.HasPrefix(prefix) {
		t.Fatal("expected prefix match")
	}
	if full.HasPrefix(FromBits(1, 1)) {
		t.Fatal("unexpected prefix match")
	}
}

func TestEmptyStringRendersEmpty(t *testing.T) {
	if Empty().String() != "empty" {
		t.Fatalf("String() = %q, want %q", Empty().String(), "empty")
	}
}

func TestFromUint(t *testing.T) {
	bs := FromUint(5, 4) // 0101
	if bs.String() != "0101" {
		t.Fatalf("FromUint(5,4) = %q, want 0101", bs.String())
	}
	bs2 := FromUint(0, 3)
	if bs2.String() != "000" {
		t.Fatalf("FromUint(0,3) = %q, want 000", bs2.String())
	}
}

func TestFromHashBytesLSBFirstPerByte(t *testing.T) {
	bs := FromHashBytes([]byte{0x01})
	// 0x01 = 0b00000001; LSB-first per byte yields bit sequence 1,0,0,0,0,0,0,0
	want := "10000000"
	if bs.String() != want {
		t.Fatalf("FromHashBytes(0x01) = %q, want %q", bs.String(), want)
	}
}

func TestConcat(t *testing.T) {
	a := FromBits(1, 0)
	b := FromBits(1, 1)
	c := Concat(a, b)
	if c.String() != "1011" {
		t.Fatalf("Concat = %q, want 1011", c.String())
	}
}

func TestPrefixSuffix(t *testing.T) {
	b := FromBits(1, 0, 1, 1, 0)
	if b.Prefix(2).String() != "10" {
		t.Fatalf("Prefix(2) = %q", b.Prefix(2).String())
	}
	if b.Suffix(2).String() != "110" {
		t.Fatalf("Suffix(2) = %q", b.Suffix(2).String())
	}
}
