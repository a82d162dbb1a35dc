package aad

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254"

	"github.com/alinush/go-aad/bintree"
	"github.com/alinush/go-aad/proof"
)

// TestScenarioThreeKeyRepeats covers three appends to one key followed by a
// fourth to a second key, checking the forest-size trajectory and that the
// resulting complete membership proof verifies.
func TestScenarioThreeKeyRepeats(t *testing.T) {
	pp := testParams(t, 4096)
	a := New(pp)

	wantSizes := [][]int{{1}, {2}, {2, 1}, {4}}

	appends := []struct{ key, val string }{
		{"k1", "v1.1"},
		{"k1", "v1.2"},
		{"k1", "v1.3"},
		{"k2", "v2.1"},
	}
	for i, ap := range appends {
		if err := a.Append([]byte(ap.key), []byte(ap.val)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		if got := a.ForestSizes(); !equalInts(got, wantSizes[i]) {
			t.Fatalf("after append %d: ForestSizes() = %v, want %v", i, got, wantSizes[i])
		}
	}

	values, err := a.GetValues([]byte("k1"))
	if err != nil {
		t.Fatalf("GetValues: %v", err)
	}
	want := [][]byte{[]byte("v1.1"), []byte("v1.2"), []byte("v1.3")}
	if len(values) != len(want) {
		t.Fatalf("GetValues(k1) = %v, want %v", values, want)
	}
	for i := range want {
		if !bytes.Equal(values[i], want[i]) {
			t.Fatalf("GetValues(k1)[%d] = %q, want %q", i, values[i], want[i])
		}
	}

	mp, err := a.CompleteMembershipProof([]byte("k1"))
	if err != nil {
		t.Fatalf("CompleteMembershipProof: %v", err)
	}
	ok, err := proof.VerifyMembership(pp, mp, []byte("k1"), a.GetDigest())
	if err != nil {
		t.Fatalf("VerifyMembership: %v", err)
	}
	if !ok {
		t.Fatalf("VerifyMembership(k1) = false, want true")
	}
}

// TestScenarioNonMembershipAfterSeveralAppends covers a non-membership
// proof over an eight-key dictionary: the queried key reaches no forest
// tree's membership subtree, only its frontier's missing-prefix witness.
func TestScenarioNonMembershipAfterSeveralAppends(t *testing.T) {
	pp := testParams(t, 4096)
	a := New(pp)
	keys := []string{"k1", "k2", "k3", "k4", "k5", "k6", "k7", "k8"}
	for i, k := range keys {
		if err := a.Append([]byte(k), []byte("v")); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	if got, want := a.ForestSizes(), []int{8}; !equalInts(got, want) {
		t.Fatalf("ForestSizes() = %v, want %v", got, want)
	}

	mp, err := a.CompleteMembershipProof([]byte("no-such-key"))
	if err != nil {
		t.Fatalf("CompleteMembershipProof: %v", err)
	}
	if len(mp.Trees) != 1 || mp.Trees[0] != nil {
		t.Fatalf("CompleteMembershipProof(no-such-key).Trees = %v, want a single nil entry (no forest subtree)", mp.Trees)
	}
	if len(mp.FrontierProofs) != 1 || mp.FrontierProofs[0] == nil {
		t.Fatalf("CompleteMembershipProof(no-such-key).FrontierProofs = %v, want a single non-nil frontier proof", mp.FrontierProofs)
	}

	ok, err := proof.VerifyMembership(pp, mp, []byte("no-such-key"), a.GetDigest())
	if err != nil {
		t.Fatalf("VerifyMembership: %v", err)
	}
	if !ok {
		t.Fatalf("VerifyMembership(no-such-key) = false, want true")
	}
}

// TestScenarioAppendOnlyAcrossMergeCascade covers an append-only proof
// spanning a forest merge, then tampers one proof element to confirm
// verification fails.
func TestScenarioAppendOnlyAcrossMergeCascade(t *testing.T) {
	pp := testParams(t, 4096)
	a := New(pp)

	for i := 0; i < 3; i++ {
		if err := a.Append([]byte("k"), []byte{byte(i)}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	if got, want := a.ForestSizes(), []int{2, 1}; !equalInts(got, want) {
		t.Fatalf("ForestSizes() after 3 appends = %v, want %v", got, want)
	}
	d3 := a.GetDigest()

	for i := 3; i < 5; i++ {
		if err := a.Append([]byte("k"), []byte{byte(i)}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	if got, want := a.ForestSizes(), []int{4, 1}; !equalInts(got, want) {
		t.Fatalf("ForestSizes() after 5 appends = %v, want %v", got, want)
	}
	d5 := a.GetDigest()

	aop, err := a.AppendOnlyProof(3)
	if err != nil {
		t.Fatalf("AppendOnlyProof: %v", err)
	}
	ok, err := proof.VerifyAppendOnly(aop, d3, d5)
	if err != nil {
		t.Fatalf("VerifyAppendOnly: %v", err)
	}
	if !ok {
		t.Fatalf("VerifyAppendOnly(3->5) = false, want true")
	}

	if !tamperOneSubsetProof(aop) {
		t.Fatalf("found no subset-proof element in the append-only proof to tamper")
	}
	ok, err = proof.VerifyAppendOnly(aop, d3, d5)
	if err != nil {
		t.Fatalf("VerifyAppendOnly on tampered proof: %v", err)
	}
	if ok {
		t.Fatalf("VerifyAppendOnly on tampered proof = true, want false")
	}
}

// TestScenarioDuplicateKeyAndValue covers appending the same (key, value)
// pair twice: both leaves must appear in the membership proof under
// distinct leaf indices.
func TestScenarioDuplicateKeyAndValue(t *testing.T) {
	pp := testParams(t, 4096)
	a := New(pp)
	if err := a.Append([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Append 1: %v", err)
	}
	if err := a.Append([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("Append 2: %v", err)
	}

	values, err := a.GetValues([]byte("k"))
	if err != nil {
		t.Fatalf("GetValues: %v", err)
	}
	if len(values) != 2 || string(values[0]) != "v" || string(values[1]) != "v" {
		t.Fatalf("GetValues(k) = %v, want [v v]", values)
	}

	mp, err := a.CompleteMembershipProof([]byte("k"))
	if err != nil {
		t.Fatalf("CompleteMembershipProof: %v", err)
	}
	leafNos := collectLeafNos(mp)
	if len(leafNos) != 2 {
		t.Fatalf("CompleteMembershipProof(k) carries %d leaf records, want 2", len(leafNos))
	}
	if leafNos[0] == leafNos[1] {
		t.Fatalf("both leaves report the same leaf index %d", leafNos[0])
	}

	ok, err := proof.VerifyMembership(pp, mp, []byte("k"), a.GetDigest())
	if err != nil {
		t.Fatalf("VerifyMembership: %v", err)
	}
	if !ok {
		t.Fatalf("VerifyMembership(k) = false, want true")
	}
}

// TestScenarioHistoricalDigest covers retrieving a historical digest after
// further appends and proving append-only evolution up to it.
func TestScenarioHistoricalDigest(t *testing.T) {
	pp := testParams(t, 4096)
	a := New(pp)
	for i := 0; i < 7; i++ {
		if err := a.Append([]byte("k"), []byte{byte(i)}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	d4, err := a.GetDigestAt(4)
	if err != nil {
		t.Fatalf("GetDigestAt(4): %v", err)
	}

	b := New(pp)
	for i := 0; i < 4; i++ {
		if err := b.Append([]byte("k"), []byte{byte(i)}); err != nil {
			t.Fatalf("Append %d on comparison dictionary: %v", i, err)
		}
	}
	if got, want := b.ForestSizes(), []int{4}; !equalInts(got, want) {
		t.Fatalf("comparison dictionary ForestSizes() = %v, want %v", got, want)
	}
	if !d4.Equal(b.GetDigest()) {
		t.Fatalf("GetDigestAt(4) does not equal the digest of a dictionary built from only 4 appends")
	}

	aop, err := a.AppendOnlyProof(4)
	if err != nil {
		t.Fatalf("AppendOnlyProof(4): %v", err)
	}
	ok, err := proof.VerifyAppendOnly(aop, d4, a.GetDigest())
	if err != nil {
		t.Fatalf("VerifyAppendOnly: %v", err)
	}
	if !ok {
		t.Fatalf("VerifyAppendOnly(4->7) = false, want true")
	}
}

// TestScenarioParameterInsufficient covers a trusted setup too small for
// the batch it is asked to commit, confirming the append fails cleanly and
// leaves dictionary state untouched.
func TestScenarioParameterInsufficient(t *testing.T) {
	pp := testParams(t, 100)
	a := New(pp)

	err := a.Append([]byte("k"), []byte("v"))
	if err == nil {
		t.Fatalf("Append against q=100 parameters succeeded, want a degree-too-high error")
	}
	if a.Size() != 0 {
		t.Fatalf("after a failed append, Size() = %d, want 0 (state must be unchanged)", a.Size())
	}
	if len(a.Keys()) != 0 {
		t.Fatalf("after a failed append, Keys() = %v, want none", a.Keys())
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// collectLeafNos walks every tree in a membership proof and returns the
// leaf index recorded on each real (key, value) leaf record.
func collectLeafNos(mp *proof.MembershipProof) []int {
	var out []int
	for _, tree := range mp.Trees {
		if tree == nil {
			continue
		}
		tree.PreorderTraverse(func(n *bintree.Node[proof.MerkleData]) {
			if n.Data.Kind == proof.KindLeaf && n.Data.IsLeafRecord {
				out = append(out, n.Data.LeafNo)
			}
		})
	}
	return out
}

// tamperOneSubsetProof flips the first subset-proof witness it finds in an
// append-only proof's trees to an unrelated group element, returning
// whether it found one to tamper.
func tamperOneSubsetProof(aop *proof.AppendOnlyProof) bool {
	_, _, _, g2 := bn254.Generators()
	var wrong bn254.G2Affine
	wrong.ScalarMultiplication(&g2, big.NewInt(12345))

	tampered := false
	for _, tree := range aop.Trees {
		if tree == nil {
			continue
		}
		tree.PreorderTraverse(func(n *bintree.Node[proof.MerkleData]) {
			if tampered {
				return
			}
			if n.Data.HasSubsetProof() {
				n.Data.SetSubsetProof(wrong)
				tampered = true
			}
		})
		if tampered {
			break
		}
	}
	return tampered
}
