package frontier

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/alinush/go-aad/bitstring"
	"github.com/alinush/go-aad/params"
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

func TestFinalizeSingleMissingKeyPrefix(t *testing.T) {
	pp := testParams(t, 8)
	f := New(pp)
	f.AddMissingKeyPrefix(bitstring.FromUint(0b1, 1))
	if err := f.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if _, err := f.RootAcc(); err != nil {
		t.Fatalf("RootAcc: %v", err)
	}
}

func TestFinalizeTwiceFails(t *testing.T) {
	pp := testParams(t, 8)
	f := New(pp)
	f.AddMissingKeyPrefix(bitstring.FromUint(0b1, 1))
	if err := f.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := f.Finalize(); err != ErrAlreadyFinalized {
		t.Fatalf("second Finalize error = %v, want ErrAlreadyFinalized", err)
	}
}

func TestFrontierProofForMissingKeyPrefix(t *testing.T) {
	pp := testParams(t, 8)
	f := New(pp)
	prefix := bitstring.FromUint(0b10, 2)
	f.AddMissingKeyPrefix(prefix)
	f.AddMissingKeyPrefix(bitstring.FromUint(0b11, 2))
	if err := f.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	proof, err := f.GetFrontierProof(prefix, false)
	if err != nil {
		t.Fatalf("GetFrontierProof: %v", err)
	}
	if proof.Data.Kind != KindRoot {
		t.Fatalf("proof root Kind = %v, want KindRoot", proof.Data.Kind)
	}
}

func TestFrontierProofForInsertedKeyValues(t *testing.T) {
	pp := testParams(t, 8)
	f := New(pp)
	keyHash := bitstring.FromUint(0b0, 1)
	f.AddMissingValuesPrefixes(keyHash, []bitstring.BitString{
		bitstring.FromUint(0b00, 2),
		bitstring.FromUint(0b01, 2),
	})
	f.AddMissingKeyPrefix(bitstring.FromUint(0b1, 1))
	if err := f.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	proof, err := f.GetFrontierProof(keyHash, true)
	if err != nil {
		t.Fatalf("GetFrontierProof: %v", err)
	}
	if proof.Data.Kind != KindRoot {
		t.Fatalf("proof root Kind = %v, want KindRoot", proof.Data.Kind)
	}
}

func TestUnknownPrefixLookupFails(t *testing.T) {
	pp := testParams(t, 8)
	f := New(pp)
	f.AddMissingKeyPrefix(bitstring.FromUint(0b1, 1))
	if err := f.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if _, err := f.GetFrontierProof(bitstring.FromUint(0b0, 1), false); err != ErrUnknownPrefix {
		t.Fatalf("GetFrontierProof error = %v, want ErrUnknownPrefix", err)
	}
}

func TestSimulateModeSkipsRealCommitments(t *testing.T) {
	f := New(nil)
	f.AddMissingKeyPrefix(bitstring.FromUint(0b1, 1))
	f.AddMissingKeyPrefix(bitstring.FromUint(0b0, 1))
	if err := f.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	proof, err := f.GetFrontierProof(bitstring.FromUint(0b1, 1), false)
	if err != nil {
		t.Fatalf("GetFrontierProof: %v", err)
	}
	if proof.Data.Kind != KindRoot {
		t.Fatalf("proof root Kind = %v, want KindRoot", proof.Data.Kind)
	}
}
