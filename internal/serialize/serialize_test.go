package serialize

import (
	"encoding/hex"
	"strings"
	"testing"
)

// accountSize returns the bytes a full account record with dataLen bytes of
// data occupies when it starts at buffer offset start: the alignment pad
// rounds the running buffer length, so it depends on start.
func accountSize(start, dataLen int) int {
	end := start + 8 + 32 + 32 + 8 + 8 + dataLen + maxPermittedDataIncrease
	if rem := end % bpfAlignOfU128; rem != 0 {
		end += bpfAlignOfU128 - rem
	}
	end += 8 // rent_epoch
	return end - start
}

func fullAccount(fill byte, dataLen int) Account {
	var a Account
	for i := range a.Key {
		a.Key[i] = fill
	}
	for i := range a.Owner {
		a.Owner[i] = fill + 1
	}
	a.Lamports = 1000
	a.Data = make([]byte, dataLen)
	for i := range a.Data {
		a.Data[i] = byte(i)
	}
	a.IsSigner = true
	a.IsWritable = true
	a.RentEpoch = 42
	return a
}

// S1: three distinct accounts, no duplicates.
func TestSerializeLengthLaw(t *testing.T) {
	accounts := []SerializeAccount{
		{Index: 0, Account: fullAccount(1, 3)},
		{Index: 1, Account: fullAccount(2, 0)},
		{Index: 2, Account: fullAccount(3, 0)},
	}
	instrData := []byte{1, 2, 3, 4}
	var programID [32]byte
	for i := range programID {
		programID[i] = 9
	}

	out := Serialize(accounts, instrData, programID)

	want := 8
	for _, a := range accounts {
		want += accountSize(want, len(a.Account.Data))
	}
	want += 8 + len(instrData) + 32

	if len(out) != want {
		t.Fatalf("length = %d, want %d", len(out), want)
	}
	if out[8] != 0xff {
		t.Fatalf("first account marker = %#x, want 0xff", out[8])
	}
}

// S2: duplicate pattern A,B,A,B.
func TestDuplicateAliasing(t *testing.T) {
	a := fullAccount(1, 2)
	b := fullAccount(2, 2)

	accounts := []SerializeAccount{
		{Index: 0, Account: a},
		{Index: 1, Account: b},
		{IsDuplicate: true, DuplicateOf: 0, Index: 2},
		{IsDuplicate: true, DuplicateOf: 1, Index: 3},
	}

	out := Serialize(accounts, nil, [32]byte{})

	off := 8
	if out[off] != 0xff {
		t.Fatalf("account A marker = %#x, want 0xff", out[off])
	}
	off += accountSize(off, len(a.Data))
	if out[off] != 0xff {
		t.Fatalf("account B marker = %#x, want 0xff", out[off])
	}
	off += accountSize(off, len(b.Data))

	if out[off] != 0x00 {
		t.Fatalf("duplicate-of-A marker = %#x, want 0x00", out[off])
	}
	for i := 1; i < 8; i++ {
		if out[off+i] != 0 {
			t.Fatalf("duplicate-of-A pad byte %d nonzero", i)
		}
	}
	off += 8

	if out[off] != 0x01 {
		t.Fatalf("duplicate-of-B marker = %#x, want 0x01", out[off])
	}
	for i := 1; i < 8; i++ {
		if out[off+i] != 0 {
			t.Fatalf("duplicate-of-B pad byte %d nonzero", i)
		}
	}
}

// S3: missing account.
func TestGenerateMissingAccount(t *testing.T) {
	var key [32]byte
	key[0] = 0xAB

	instr := Instruction{
		Accounts: []Meta{{Key: key}},
	}
	_, err := Generate(instr, map[[32]byte]Account{}, "out")
	if err == nil {
		t.Fatal("expected MissingAccount error, got nil")
	}
}

// Property 3: alignment after each full account, before rent_epoch.
func TestAlignmentBeforeRentEpoch(t *testing.T) {
	for _, dataLen := range []int{0, 1, 15, 16, 17, 100} {
		w := &writer{}
		w.writeAccountData(make([]byte, dataLen))
		if len(w.buf)%bpfAlignOfU128 != 0 {
			t.Fatalf("dataLen=%d: buffer length %d not 16-aligned", dataLen, len(w.buf))
		}
	}
}

// Property 4: hex round-trip of the lowercase, separator-free encoding that
// writeHexFile uses (encoding/hex), checked on a byte slice directly.
func TestHexEncodingRoundTrip(t *testing.T) {
	raw := []byte{0x01, 0x02, 0xff, 0x00}
	encoded := hex.EncodeToString(raw)
	decoded, err := hex.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(decoded) != string(raw) {
		t.Fatalf("round-trip mismatch")
	}
	if strings.ContainsAny(encoded, "\n ") {
		t.Fatalf("hex string should have no separators")
	}
}
