package solana

import (
	"encoding/base64"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// signerIndex returns the position of signer among the required signers of
// tx, or -1.
func signerIndex(tx *solana.Transaction, signer solana.PublicKey) int {
	n := int(tx.Message.Header.NumRequiredSignatures)
	for i := 0; i < n && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(signer) {
			return i
		}
	}
	return -1
}

// PartialSign adds the signature of key to tx without touching the other
// signature slots. It fails when key is not a required signer.
func PartialSign(tx *solana.Transaction, key solana.PrivateKey) error {
	signer := key.PublicKey()
	idx := signerIndex(tx, signer)
	if idx < 0 {
		return fmt.Errorf("%s is not a required signer of this transaction", signer)
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	sig, err := key.Sign(msg)
	if err != nil {
		return fmt.Errorf("failed to sign message: %w", err)
	}

	n := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) < n {
		grown := make([]solana.Signature, n)
		copy(grown, tx.Signatures)
		tx.Signatures = grown
	}
	tx.Signatures[idx] = sig
	return nil
}

// MissingSigners lists required signers whose signature slot is still empty.
func MissingSigners(tx *solana.Transaction) []solana.PublicKey {
	var missing []solana.PublicKey
	n := int(tx.Message.Header.NumRequiredSignatures)
	for i := 0; i < n && i < len(tx.Message.AccountKeys); i++ {
		if i >= len(tx.Signatures) || tx.Signatures[i] == (solana.Signature{}) {
			missing = append(missing, tx.Message.AccountKeys[i])
		}
	}
	return missing
}

// EncodeTransaction serializes tx to base64 wire format.
func EncodeTransaction(tx *solana.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
