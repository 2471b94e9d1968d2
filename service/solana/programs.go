package solana

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Well-known Solana program and sysvar IDs
var (
	// SystemProgramID is the native SOL transfer program
	SystemProgramID = solana.MustPublicKeyFromBase58("11111111111111111111111111111111")

	// TokenProgramID is the SPL Token program
	TokenProgramID = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

	// AssociatedTokenProgramID derives and creates associated token accounts
	AssociatedTokenProgramID = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")

	// StakeProgramID is the native stake program
	StakeProgramID = solana.MustPublicKeyFromBase58("Stake11111111111111111111111111111111111111")

	// StakeConfigID is the stake config account required by DelegateStake
	StakeConfigID = solana.MustPublicKeyFromBase58("StakeConfig11111111111111111111111111111111")

	// NativeMint is the wrapped SOL mint
	NativeMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

	SysvarRentID         = solana.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")
	SysvarClockID        = solana.MustPublicKeyFromBase58("SysvarC1ock11111111111111111111111111111111")
	SysvarStakeHistoryID = solana.MustPublicKeyFromBase58("SysvarStakeHistory1111111111111111111111111")
)

const (
	// StakeAccountSize is the data length of a stake account.
	StakeAccountSize = 200

	// TokenAccountSize is the data length of an SPL token account.
	TokenAccountSize = 165

	// MintDecimalsOffset is the byte offset of the decimals field in a mint.
	MintDecimalsOffset = 44

	// StakeWithdrawerOffset is the byte offset of the withdraw authority in
	// a stake account: u32 state, u64 rent reserve, staker.
	StakeWithdrawerOffset = 4 + 8 + 32
)

// System Program instruction types
const (
	systemCreateAccountWithSeed = uint32(3)
)

// Stake Program instruction types
const (
	stakeInitialize    = uint32(0)
	stakeDelegateStake = uint32(2)
	stakeWithdraw      = uint32(4)
	stakeDeactivate    = uint32(5)
)

// Associated Token Program instruction types
const (
	ataCreateIdempotent = byte(1)
)

// Lockup is a stake account lockup. The zero value means no lockup.
type Lockup struct {
	UnixTimestamp int64
	Epoch         uint64
	Custodian     solana.PublicKey
}

// instructionData writes a little-endian instruction body.
type instructionData struct {
	buf bytes.Buffer
	enc *bin.Encoder
	err error
}

func newInstructionData() *instructionData {
	d := &instructionData{}
	d.enc = bin.NewBinEncoder(&d.buf)
	return d
}

func (d *instructionData) u32(v uint32) *instructionData {
	if d.err == nil {
		d.err = d.enc.WriteUint32(v, binary.LittleEndian)
	}
	return d
}

func (d *instructionData) u64(v uint64) *instructionData {
	if d.err == nil {
		d.err = d.enc.WriteUint64(v, binary.LittleEndian)
	}
	return d
}

func (d *instructionData) i64(v int64) *instructionData {
	if d.err == nil {
		d.err = d.enc.WriteInt64(v, binary.LittleEndian)
	}
	return d
}

func (d *instructionData) raw(b []byte) *instructionData {
	if d.err == nil {
		d.err = d.enc.WriteBytes(b, false)
	}
	return d
}

func (d *instructionData) pubkey(pk solana.PublicKey) *instructionData {
	return d.raw(pk[:])
}

// str writes a u64 length prefix followed by the bytes of s.
func (d *instructionData) str(s string) *instructionData {
	return d.u64(uint64(len(s))).raw([]byte(s))
}

func (d *instructionData) bytes() ([]byte, error) {
	if d.err != nil {
		return nil, fmt.Errorf("failed to encode instruction: %w", d.err)
	}
	return d.buf.Bytes(), nil
}

// NewCreateAccountWithSeedInstruction creates an account at the address
// derived from base, seed and owner. base signs; it may equal funding.
func NewCreateAccountWithSeedInstruction(
	funding, created, base solana.PublicKey,
	seed string,
	lamports, space uint64,
	owner solana.PublicKey,
) (solana.Instruction, error) {
	data, err := newInstructionData().
		u32(systemCreateAccountWithSeed).
		pubkey(base).
		str(seed).
		u64(lamports).
		u64(space).
		pubkey(owner).
		bytes()
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.NewAccountMeta(funding, true, true),
		solana.NewAccountMeta(created, true, false),
	}
	if !base.Equals(funding) {
		accounts = append(accounts, solana.NewAccountMeta(base, false, true))
	}
	return solana.NewInstruction(SystemProgramID, accounts, data), nil
}

// NewStakeInitializeInstruction initializes a stake account with the given
// staker and withdrawer authorities.
func NewStakeInitializeInstruction(stake, staker, withdrawer solana.PublicKey, lockup Lockup) (solana.Instruction, error) {
	data, err := newInstructionData().
		u32(stakeInitialize).
		pubkey(staker).
		pubkey(withdrawer).
		i64(lockup.UnixTimestamp).
		u64(lockup.Epoch).
		pubkey(lockup.Custodian).
		bytes()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(StakeProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(stake, true, false),
		solana.NewAccountMeta(SysvarRentID, false, false),
	}, data), nil
}

// NewDelegateStakeInstruction delegates stake to a vote account.
func NewDelegateStakeInstruction(stake, vote, authority solana.PublicKey) (solana.Instruction, error) {
	data, err := newInstructionData().u32(stakeDelegateStake).bytes()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(StakeProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(stake, true, false),
		solana.NewAccountMeta(vote, false, false),
		solana.NewAccountMeta(SysvarClockID, false, false),
		solana.NewAccountMeta(SysvarStakeHistoryID, false, false),
		solana.NewAccountMeta(StakeConfigID, false, false),
		solana.NewAccountMeta(authority, false, true),
	}, data), nil
}

// NewDeactivateStakeInstruction starts cooling down a delegated stake.
func NewDeactivateStakeInstruction(stake, authority solana.PublicKey) (solana.Instruction, error) {
	data, err := newInstructionData().u32(stakeDeactivate).bytes()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(StakeProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(stake, true, false),
		solana.NewAccountMeta(SysvarClockID, false, false),
		solana.NewAccountMeta(authority, false, true),
	}, data), nil
}

// NewWithdrawStakeInstruction withdraws lamports from an inactive stake.
func NewWithdrawStakeInstruction(stake, recipient, authority solana.PublicKey, lamports uint64) (solana.Instruction, error) {
	data, err := newInstructionData().u32(stakeWithdraw).u64(lamports).bytes()
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(StakeProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(stake, true, false),
		solana.NewAccountMeta(recipient, true, false),
		solana.NewAccountMeta(SysvarClockID, false, false),
		solana.NewAccountMeta(SysvarStakeHistoryID, false, false),
		solana.NewAccountMeta(authority, false, true),
	}, data), nil
}

// NewCreateIdempotentATAInstruction creates the associated token account of
// owner for mint, succeeding if it already exists.
func NewCreateIdempotentATAInstruction(payer, ata, owner, mint solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(AssociatedTokenProgramID, solana.AccountMetaSlice{
		solana.NewAccountMeta(payer, true, true),
		solana.NewAccountMeta(ata, true, false),
		solana.NewAccountMeta(owner, false, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(SystemProgramID, false, false),
		solana.NewAccountMeta(TokenProgramID, false, false),
	}, []byte{ataCreateIdempotent})
}

// MintDecimals reads the decimals field from raw mint account data.
func MintDecimals(data []byte) (uint8, error) {
	if len(data) <= MintDecimalsOffset {
		return 0, fmt.Errorf("mint data too short: %d bytes", len(data))
	}
	return data[MintDecimalsOffset], nil
}

// Stake account states.
const (
	StakeStateUninitialized = uint32(0)
	StakeStateInitialized   = uint32(1)
	StakeStateDelegated     = uint32(2)
)

// StakeState is the decoded head of a stake account. The delegation fields
// are only set when State is StakeStateDelegated.
type StakeState struct {
	State             uint32
	RentExemptReserve uint64
	Staker            solana.PublicKey
	Withdrawer        solana.PublicKey
	Voter             *solana.PublicKey
	Delegated         uint64
	ActivationEpoch   uint64
	DeactivationEpoch uint64
}

// DecodeStakeAccount reads the meta and delegation of raw stake account data.
func DecodeStakeAccount(data []byte) (StakeState, error) {
	var out StakeState
	if len(data) < StakeAccountSize {
		return out, fmt.Errorf("stake account data too short: %d bytes", len(data))
	}
	dec := bin.NewBinDecoder(data)
	var err error
	if out.State, err = dec.ReadUint32(binary.LittleEndian); err != nil {
		return out, err
	}
	if out.State != StakeStateInitialized && out.State != StakeStateDelegated {
		return out, nil
	}
	if out.RentExemptReserve, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return out, err
	}
	if out.Staker, err = readPublicKey(dec); err != nil {
		return out, err
	}
	if out.Withdrawer, err = readPublicKey(dec); err != nil {
		return out, err
	}
	if out.State != StakeStateDelegated {
		return out, nil
	}
	// lockup: unix timestamp, epoch, custodian
	if err := dec.SkipBytes(8 + 8 + 32); err != nil {
		return out, err
	}
	voter, err := readPublicKey(dec)
	if err != nil {
		return out, err
	}
	out.Voter = &voter
	if out.Delegated, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return out, err
	}
	if out.ActivationEpoch, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return out, err
	}
	if out.DeactivationEpoch, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return out, err
	}
	return out, nil
}

func readPublicKey(dec *bin.Decoder) (solana.PublicKey, error) {
	raw, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(raw), nil
}
