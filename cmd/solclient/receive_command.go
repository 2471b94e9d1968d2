package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/skip2/go-qrcode"
	"github.com/urfave/cli/v2"
)

// paymentRequest is a Solana Pay transfer request.
type paymentRequest struct {
	Recipient string `json:"recipient"`
	URL       string `json:"url"`
	PNG       string `json:"png,omitempty"`
}

func receiveCommand() *cli.Command {
	return &cli.Command{
		Name:      "receive",
		Usage:     "Show a Solana Pay request (with QR code) for receiving funds",
		ArgsUsage: "[address]",
		Description: `Builds a Solana Pay transfer request URL for the address, or for the wallet
selected by --wallet when no address is given, and prints it as a QR code.

Example:
  solclient receive --sol 0.5 --memo order-1234`,
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:  "lamports",
				Usage: "Requested amount in lamports",
			},
			&cli.StringFlag{
				Name:  "sol",
				Usage: "Requested amount in SOL, e.g. 1.5",
			},
			&cli.StringFlag{
				Name:  "spl-token",
				Usage: "Request an SPL token instead of SOL; --sol then carries the token amount",
			},
			&cli.StringFlag{
				Name:  "memo",
				Usage: "Memo the payer should attach",
			},
			&cli.StringFlag{
				Name:  "label",
				Usage: "Label shown by the paying wallet",
			},
			&cli.StringFlag{
				Name:  "png",
				Usage: "Also write the QR code as a PNG to this file",
			},
		},
		Action: func(c *cli.Context) error {
			var recipient solana.PublicKey
			if c.NArg() > 0 {
				var err error
				if recipient, err = parseAddress(c, 0, "address"); err != nil {
					return err
				}
			} else {
				cl, err := newClient(c)
				if err != nil {
					return err
				}
				defer cl.Destroy()
				authority, err := signer(c.Context, c, cl)
				if err != nil {
					return err
				}
				recipient = authority.Address()
			}

			var lamports uint64
			if c.IsSet("sol") || c.IsSet("lamports") {
				var err error
				if lamports, err = amount(c); err != nil {
					return err
				}
			}
			if mint := c.String("spl-token"); mint != "" {
				if _, err := solana.PublicKeyFromBase58(mint); err != nil {
					return fmt.Errorf("invalid spl-token %q: %w", mint, err)
				}
			}

			req := paymentRequest{
				Recipient: recipient.String(),
				URL:       solanaPayURL(recipient, lamports, c.String("spl-token"), c.String("memo"), c.String("label")),
			}
			qr, err := qrcode.New(req.URL, qrcode.Medium)
			if err != nil {
				return fmt.Errorf("failed to create QR code: %w", err)
			}
			if path := c.String("png"); path != "" {
				if err := qr.WriteFile(256, path); err != nil {
					return fmt.Errorf("failed to write QR code: %w", err)
				}
				req.PNG = path
			}

			return output(c, req, func(w io.Writer) {
				fmt.Fprint(w, qr.ToSmallString(false))
				fmt.Fprintf(w, "Recipient: %s\n", req.Recipient)
				fmt.Fprintf(w, "URL:       %s\n", req.URL)
				if req.PNG != "" {
					fmt.Fprintf(w, "PNG:       %s\n", req.PNG)
				}
			})
		},
	}
}

// solanaPayURL builds solana:{recipient}?amount=...&spl-token=...&memo=...&label=...
// A zero amount leaves the amount to the payer.
func solanaPayURL(recipient solana.PublicKey, lamports uint64, mint, memo, label string) string {
	params := url.Values{}
	if lamports > 0 {
		params.Set("amount", decimalSOL(lamports))
	}
	if mint != "" {
		params.Set("spl-token", mint)
	}
	if memo != "" {
		params.Set("memo", memo)
	}
	if label != "" {
		params.Set("label", label)
	}
	if len(params) == 0 {
		return "solana:" + recipient.String()
	}
	return fmt.Sprintf("solana:%s?%s", recipient, params.Encode())
}

// decimalSOL renders lamports as a SOL amount without trailing zeros.
func decimalSOL(lamports uint64) string {
	whole := lamports / solana.LAMPORTS_PER_SOL
	frac := strings.TrimRight(fmt.Sprintf("%09d", lamports%solana.LAMPORTS_PER_SOL), "0")
	if frac == "" {
		return fmt.Sprintf("%d", whole)
	}
	return fmt.Sprintf("%d.%s", whole, frac)
}
