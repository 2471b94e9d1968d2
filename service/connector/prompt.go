package connector

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// PromptKey returns an interactive KeySource that asks for a base58 private
// key or a mnemonic phrase on in. An empty answer rejects the request.
func PromptKey(in io.Reader, out io.Writer, walletName string) KeySource {
	reader := bufio.NewReader(in)
	return func(ctx context.Context) (solana.PrivateKey, error) {
		fmt.Fprintf(out, "Connect %s: paste a base58 private key or mnemonic (empty to cancel): ", walletName)

		type answer struct {
			line string
			err  error
		}
		ch := make(chan answer, 1)
		go func() {
			line, err := reader.ReadString('\n')
			ch <- answer{line: line, err: err}
		}()

		var got answer
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case got = <-ch:
		}
		if got.err != nil && got.err != io.EOF {
			return nil, fmt.Errorf("failed to read key: %w", got.err)
		}

		text := strings.TrimSpace(got.line)
		if text == "" {
			return nil, ErrUserRejected
		}
		if len(strings.Fields(text)) > 1 {
			return keyFromMnemonic(text, "")
		}
		key, err := solana.PrivateKeyFromBase58(text)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		return key, nil
	}
}
