package solana

import (
	"encoding/base64"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTwoSignerTx(t *testing.T, payer, sender solana.PublicKey) *solana.Transaction {
	t.Helper()
	recipient := solana.NewWallet().PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1, sender, recipient).Build()},
		solana.Hash{3},
		solana.TransactionPayer(payer),
	)
	require.NoError(t, err)
	return tx
}

func TestPartialSign(t *testing.T) {
	payer := solana.NewWallet()
	sender := solana.NewWallet()
	tx := newTwoSignerTx(t, payer.PublicKey(), sender.PublicKey())

	// Act: only the payer signs
	require.NoError(t, PartialSign(tx, payer.PrivateKey))

	// Assert: the sender's slot is still open
	assert.Equal(t, []solana.PublicKey{sender.PublicKey()}, MissingSigners(tx))

	require.NoError(t, PartialSign(tx, sender.PrivateKey))
	assert.Empty(t, MissingSigners(tx))
	assert.NoError(t, tx.VerifySignatures())
}

func TestPartialSign_NotASigner(t *testing.T) {
	payer := solana.NewWallet()
	tx := newTwoSignerTx(t, payer.PublicKey(), payer.PublicKey())

	err := PartialSign(tx, solana.NewWallet().PrivateKey)
	assert.ErrorContains(t, err, "not a required signer")
}

func TestEncodeTransaction(t *testing.T) {
	payer := solana.NewWallet()
	tx := newTwoSignerTx(t, payer.PublicKey(), payer.PublicKey())
	require.NoError(t, PartialSign(tx, payer.PrivateKey))

	encoded, err := EncodeTransaction(tx)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	decoded, err := solana.TransactionFromBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures, decoded.Signatures)
}
