package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcServer answers every JSON-RPC request with result and records the
// request params.
func rpcServer(t *testing.T, result string, params *[]json.RawMessage) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage   `json:"id"`
			Params []json.RawMessage `json:"params"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if params != nil {
			*params = req.Params
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":` + result + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetAccountInfo_MissingAccountKeepsSlot(t *testing.T) {
	// Setup
	srv := rpcServer(t, `{"context":{"slot":4242},"value":null}`, nil)
	client := NewRPCClient(srv.URL)
	address := solana.NewWallet().PublicKey()

	// Act
	_, err := client.GetAccountInfoWithOpts(context.Background(), address, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentProcessed,
	})

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, rpc.ErrNotFound))
	var missing *AccountNotFoundError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, uint64(4242), missing.Slot)
	assert.Equal(t, address, missing.Account)
}

func TestGetAccountInfo_Found(t *testing.T) {
	// Setup
	var params []json.RawMessage
	srv := rpcServer(t, `{"context":{"slot":77},"value":{"lamports":1000,"owner":"11111111111111111111111111111111","data":["AQID","base64"],"executable":false,"rentEpoch":0}}`, &params)
	client := NewRPCClient(srv.URL)

	// Act
	res, err := client.GetAccountInfoWithOpts(context.Background(), solana.NewWallet().PublicKey(), &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentConfirmed,
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, uint64(77), res.Context.Slot)
	assert.Equal(t, uint64(1000), res.Value.Lamports)
	assert.Equal(t, []byte{1, 2, 3}, res.Value.Data.GetBinary())
	require.Len(t, params, 2)
	assert.JSONEq(t, `{"encoding":"base64","commitment":"confirmed"}`, string(params[1]))
}
