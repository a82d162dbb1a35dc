package aad

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/alinush/go-aad/params"
	"github.com/alinush/go-aad/proof"
)

func testParams(t *testing.T, q int) *params.PublicParameters {
	t.Helper()
	var s, tau fr.Element
	s.SetUint64(19)
	tau.SetUint64(23)
	pp, err := params.NewForTesting(q, s, tau)
	if err != nil {
		t.Fatalf("NewForTesting: %v", err)
	}
	return pp
}

func TestAppendAndQuery(t *testing.T) {
	pp := testParams(t, 4096)
	a := New(pp)

	if err := a.Append([]byte("alice"), []byte("v1")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := a.Append([]byte("bob"), []byte("v2")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := a.Append([]byte("alice"), []byte("v3")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if got := a.Size(); got != 3 {
		t.Fatalf("Size() = %d, want 3", got)
	}
	if got := a.OccurrenceCount([]byte("alice")); got != 2 {
		t.Fatalf("OccurrenceCount(alice) = %d, want 2", got)
	}

	values, err := a.GetValues([]byte("alice"))
	if err != nil {
		t.Fatalf("GetValues: %v", err)
	}
	if len(values) != 2 || string(values[0]) != "v1" || string(values[1]) != "v3" {
		t.Fatalf("GetValues(alice) = %v, want [v1 v3]", values)
	}

	if _, err := a.GetValues([]byte("carol")); err != ErrKeyNotFound {
		t.Fatalf("GetValues(carol) error = %v, want ErrKeyNotFound", err)
	}

	key, err := a.GetKeyByLeafNo(1)
	if err != nil {
		t.Fatalf("GetKeyByLeafNo(1): %v", err)
	}
	if string(key) != "bob" {
		t.Fatalf("GetKeyByLeafNo(1) = %q, want bob", key)
	}
	if _, err := a.GetKeyByLeafNo(99); err != ErrLeafIndexOutOfRange {
		t.Fatalf("GetKeyByLeafNo(99) error = %v, want ErrLeafIndexOutOfRange", err)
	}

	keys := a.Keys()
	if len(keys) != 2 {
		t.Fatalf("Keys() = %v, want 2 distinct keys", keys)
	}

	roots := a.GetRootATs()
	if len(roots) == 0 {
		t.Fatalf("GetRootATs() returned no roots")
	}
}

func TestSetBatchSizeRejectsNonPositive(t *testing.T) {
	a := New(testParams(t, 8))
	if err := a.SetBatchSize(0); err != ErrInvalidBatchSize {
		t.Fatalf("SetBatchSize(0) error = %v, want ErrInvalidBatchSize", err)
	}
	if err := a.SetBatchSize(-1); err != ErrInvalidBatchSize {
		t.Fatalf("SetBatchSize(-1) error = %v, want ErrInvalidBatchSize", err)
	}
	if err := a.SetBatchSize(2); err != nil {
		t.Fatalf("SetBatchSize(2): %v", err)
	}
}

func TestDigestAtTracksHistory(t *testing.T) {
	pp := testParams(t, 4096)
	a := New(pp)
	for i := 0; i < 4; i++ {
		if err := a.Append([]byte("k"), []byte{byte(i)}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	d1, err := a.GetDigestAt(1)
	if err != nil {
		t.Fatalf("GetDigestAt(1): %v", err)
	}
	current := a.GetDigest()
	if d1.Equal(current) {
		t.Fatalf("digest at version 1 unexpectedly equals the current digest")
	}

	if _, err := a.GetDigestAt(0); err != ErrVersionOutOfRange {
		t.Fatalf("GetDigestAt(0) error = %v, want ErrVersionOutOfRange", err)
	}
	if _, err := a.GetDigestAt(5); err != ErrVersionOutOfRange {
		t.Fatalf("GetDigestAt(5) error = %v, want ErrVersionOutOfRange", err)
	}
}

func TestMembershipProofRoundTrip(t *testing.T) {
	pp := testParams(t, 4096)
	a := New(pp)
	if err := a.Append([]byte("alice"), []byte("v1")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := a.Append([]byte("bob"), []byte("v2")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	mp, err := a.CompleteMembershipProof([]byte("alice"))
	if err != nil {
		t.Fatalf("CompleteMembershipProof: %v", err)
	}
	digest := a.GetDigest()

	ok, err := proof.VerifyMembership(pp, mp, []byte("alice"), digest)
	if err != nil {
		t.Fatalf("VerifyMembership: %v", err)
	}
	if !ok {
		t.Fatalf("VerifyMembership(alice) = false, want true")
	}
}

func TestMembershipProofAbsentKey(t *testing.T) {
	pp := testParams(t, 4096)
	a := New(pp)
	if err := a.Append([]byte("alice"), []byte("v1")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	mp, err := a.CompleteMembershipProof([]byte("carol"))
	if err != nil {
		t.Fatalf("CompleteMembershipProof: %v", err)
	}
	digest := a.GetDigest()

	ok, err := proof.VerifyMembership(pp, mp, []byte("carol"), digest)
	if err != nil {
		t.Fatalf("VerifyMembership: %v", err)
	}
	if !ok {
		t.Fatalf("VerifyMembership(carol) = false, want true (absence proof should still verify)")
	}
}

func TestAppendOnlyProofRoundTrip(t *testing.T) {
	pp := testParams(t, 4096)
	a := New(pp)
	for i := 0; i < 2; i++ {
		if err := a.Append([]byte("k"), []byte{byte(i)}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	oldDigest := a.GetDigest()

	for i := 2; i < 4; i++ {
		if err := a.Append([]byte("k"), []byte{byte(i)}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	newDigest := a.GetDigest()

	aop, err := a.AppendOnlyProof(2)
	if err != nil {
		t.Fatalf("AppendOnlyProof: %v", err)
	}

	ok, err := proof.VerifyAppendOnly(aop, oldDigest, newDigest)
	if err != nil {
		t.Fatalf("VerifyAppendOnly: %v", err)
	}
	if !ok {
		t.Fatalf("VerifyAppendOnly = false, want true")
	}
}

func TestAppendOnlyProofRejectsVersionOutOfRange(t *testing.T) {
	pp := testParams(t, 64)
	a := New(pp)
	if err := a.Append([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := a.AppendOnlyProof(0); err != ErrVersionOutOfRange {
		t.Fatalf("AppendOnlyProof(0) error = %v, want ErrVersionOutOfRange", err)
	}
	if _, err := a.AppendOnlyProof(2); err != ErrVersionOutOfRange {
		t.Fatalf("AppendOnlyProof(2) error = %v, want ErrVersionOutOfRange", err)
	}
}

func TestSimulateModeSmoke(t *testing.T) {
	a := New(nil)
	for i := 0; i < 4; i++ {
		if err := a.Append([]byte("k"), []byte{byte(i)}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	if got := a.Size(); got != 4 {
		t.Fatalf("Size() = %d, want 4", got)
	}
	d := a.GetDigest()
	if len(d) == 0 {
		t.Fatalf("GetDigest() returned no entries")
	}
	if _, err := a.CompleteMembershipProof([]byte("k")); err != nil {
		t.Fatalf("CompleteMembershipProof in simulate mode: %v", err)
	}
}
