// Package serialize produces the bit-exact sBPF input buffer for a program
// invocation: an instruction plus a set of accounts goes in, a byte slice
// matching the sBPF input-region layout comes out, optionally hex-encoded
// to a .dbg/ file for a build-and-run session.
package serialize

import (
	"encoding/binary"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/xyproto/sbpfdbg/internal/dbgerr"
)

const (
	nonDupMarker            = 0xff
	maxPermittedDataIncrease = 10240
	bpfAlignOfU128           = 16
)

// Account is one account's full state as provided to the serializer.
type Account struct {
	Key        [32]byte
	Owner      [32]byte
	Lamports   uint64
	Data       []byte
	IsSigner   bool
	IsWritable bool
	Executable bool
	RentEpoch  uint64
}

// Meta is the per-invocation account reference: a key plus the signer and
// writable flags the instruction requests for it.
type Meta struct {
	Key        [32]byte
	IsSigner   bool
	IsWritable bool
}

// Instruction is what generate consumes: a target program, its ordered
// account-meta list, and the raw instruction payload.
type Instruction struct {
	ProgramID [32]byte
	Accounts  []Meta
	Data      []byte
}

// SerializeAccount is the tagged union the byte layout distinguishes: a
// full account carrying its original position, or a back-reference to an
// earlier duplicate.
type SerializeAccount struct {
	IsDuplicate  bool
	DuplicateOf  byte
	Index        int
	Account      Account
}

type writer struct {
	buf []byte
}

func (w *writer) writeU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) writeByte(b byte) { w.buf = append(w.buf, b) }

func (w *writer) writeBytes(b []byte) { w.buf = append(w.buf, b...) }

func (w *writer) pad(n int) {
	for i := 0; i < n; i++ {
		w.buf = append(w.buf, 0)
	}
}

// writeAccountData appends data, the 10240-byte realloc pad, then pads the
// running buffer length up to a 16-byte boundary — alignment is applied to
// the whole buffer so far, not to the data field in isolation.
func (w *writer) writeAccountData(data []byte) {
	w.writeU64(uint64(len(data)))
	w.writeBytes(data)
	w.pad(maxPermittedDataIncrease)
	if rem := len(w.buf) % bpfAlignOfU128; rem != 0 {
		w.pad(bpfAlignOfU128 - rem)
	}
}

// Serialize builds the exact sBPF input-region byte layout for the given
// account list, instruction data, and program id.
func Serialize(accounts []SerializeAccount, instructionData []byte, programID [32]byte) []byte {
	w := &writer{}
	w.writeU64(uint64(len(accounts)))

	for _, sa := range accounts {
		if sa.IsDuplicate {
			w.writeByte(sa.DuplicateOf)
			w.pad(7)
			continue
		}
		a := sa.Account
		w.writeByte(nonDupMarker)
		w.writeByte(boolByte(a.IsSigner))
		w.writeByte(boolByte(a.IsWritable))
		w.writeByte(boolByte(a.Executable))
		w.pad(4)
		w.writeBytes(a.Key[:])
		w.writeBytes(a.Owner[:])
		w.writeU64(a.Lamports)
		w.writeAccountData(a.Data)
		w.writeU64(a.RentEpoch)
	}

	w.writeU64(uint64(len(instructionData)))
	w.writeBytes(instructionData)
	w.writeBytes(programID[:])
	return w.buf
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Generate resolves an Instruction's account-meta list against the
// provided account set (keyed by public key), detecting duplicates by
// key, then serializes the result and writes it hex-encoded under
// .dbg/<name>[.hex]. It returns the raw (non-hex) bytes.
func Generate(instr Instruction, provided map[[32]byte]Account, outputName string) ([]byte, error) {
	seen := make(map[[32]byte]int, len(instr.Accounts))
	accounts := make([]SerializeAccount, 0, len(instr.Accounts))

	for i, meta := range instr.Accounts {
		if j, ok := seen[meta.Key]; ok {
			accounts = append(accounts, SerializeAccount{IsDuplicate: true, DuplicateOf: byte(j), Index: i})
			continue
		}
		seen[meta.Key] = i
		acct, ok := provided[meta.Key]
		if !ok {
			return nil, dbgerr.MissingAccount(hex.EncodeToString(meta.Key[:]))
		}
		acct.IsSigner = meta.IsSigner
		acct.IsWritable = meta.IsWritable
		accounts = append(accounts, SerializeAccount{Index: i, Account: acct})
	}

	raw := Serialize(accounts, instr.Data, instr.ProgramID)

	if err := writeHexFile(raw, outputName); err != nil {
		return nil, err
	}
	return raw, nil
}

func writeHexFile(raw []byte, name string) error {
	if filepath.Ext(name) == "" {
		name += ".hex"
	}
	if err := os.MkdirAll(".dbg", 0o755); err != nil {
		return dbgerr.IO("create .dbg directory", err)
	}
	encoded := hex.EncodeToString(raw) + "\n"
	path := filepath.Join(".dbg", name)
	if err := os.WriteFile(path, []byte(encoded), 0o644); err != nil {
		return dbgerr.IO("write "+path, err)
	}
	return nil
}
