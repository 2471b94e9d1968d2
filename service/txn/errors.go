package txn

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// SubmissionCode enumerates submission failures.
type SubmissionCode string

const (
	// SignatureUnresolved means the plan finished without a signature.
	SignatureUnresolved SubmissionCode = "signature_unresolved"
	// BlockhashNotFound means the lifetime expired before the cluster saw it.
	BlockhashNotFound SubmissionCode = "blockhash_not_found"
	// AlreadyProcessed means the cluster has already seen this exact message.
	AlreadyProcessed SubmissionCode = "already_processed"
	// Rejected covers every other error reported by the cluster.
	Rejected SubmissionCode = "rejected"
)

// SubmissionError is a failure to get a transaction accepted.
type SubmissionError struct {
	Code SubmissionCode
	Err  error
}

func (e *SubmissionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("submission failed: %s", e.Code)
	}
	return fmt.Sprintf("submission failed (%s): %v", e.Code, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// LifetimeExpired reports whether a fresh blockhash may fix the failure.
func (e *SubmissionError) LifetimeExpired() bool {
	return e.Code == BlockhashNotFound || e.Code == AlreadyProcessed
}

// IsLifetimeExpired reports whether err is a SubmissionError that a fresh
// blockhash may fix.
func IsLifetimeExpired(err error) bool {
	var subErr *SubmissionError
	return errors.As(err, &subErr) && subErr.LifetimeExpired()
}

// Transaction error names reported in the JSON-RPC error data.
const (
	rpcErrBlockhashNotFound = "BlockhashNotFound"
	rpcErrAlreadyProcessed  = "AlreadyProcessed"
)

// classify turns a JSON-RPC error from sendTransaction into a
// SubmissionError. Transport errors pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return err
	}
	return &SubmissionError{Code: codeOf(rpcErr.Data), Err: err}
}

// codeOf reads the transaction error name from RPC error data shaped like
// {"err": "BlockhashNotFound", "logs": [...]}.
func codeOf(data interface{}) SubmissionCode {
	var name interface{}
	switch d := data.(type) {
	case map[string]interface{}:
		name = d["err"]
	case json.RawMessage:
		var decoded map[string]interface{}
		if json.Unmarshal(d, &decoded) == nil {
			name = decoded["err"]
		}
	}
	switch name {
	case rpcErrBlockhashNotFound:
		return BlockhashNotFound
	case rpcErrAlreadyProcessed:
		return AlreadyProcessed
	default:
		return Rejected
	}
}
