package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brojonat/solclient/client"
	"github.com/brojonat/solclient/service/snapshot"
	"github.com/urfave/cli/v2"
)

func timeoutFlag() cli.Flag {
	return &cli.DurationFlag{
		Name:  "timeout",
		Usage: "Request timeout",
		Value: 5 * time.Second,
	}
}

func newRemote(c *cli.Context) (*client.Remote, error) {
	serverURL := c.String("server-url")
	if serverURL == "" {
		return nil, fmt.Errorf("server-url is required (set SERVER_URL env var or use --server-url)")
	}
	return client.NewRemote(serverURL, &http.Client{Timeout: c.Duration("timeout")}, newLogger(c)), nil
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server health",
		Flags: []cli.Flag{timeoutFlag()},
		Action: func(c *cli.Context) error {
			remote, err := newRemote(c)
			if err != nil {
				return err
			}
			if err := remote.Health(c.Context); err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return output(c, map[string]string{"status": "ok", "url": c.String("server-url")}, func(w io.Writer) {
				fmt.Fprintln(w, "✓ Server is healthy")
				fmt.Fprintf(w, "  URL: %s\n", c.String("server-url"))
			})
		},
	}
}

func remoteStateCommand() *cli.Command {
	return &cli.Command{
		Name:  "state",
		Usage: "Show the state of a running server's client",
		Flags: []cli.Flag{timeoutFlag()},
		Action: func(c *cli.Context) error {
			remote, err := newRemote(c)
			if err != nil {
				return err
			}
			view, err := remote.State(c.Context)
			if err != nil {
				return fmt.Errorf("failed to get state: %w", err)
			}
			return output(c, view, func(w io.Writer) {
				printView(w, *view)
			})
		},
	}
}

func streamCommand() *cli.Command {
	return &cli.Command{
		Name:  "stream",
		Usage: "Follow a running server's persisted snapshot (Ctrl-C to exit)",
		Flags: []cli.Flag{timeoutFlag()},
		Action: func(c *cli.Context) error {
			remote, err := newRemote(c)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(c)
			defer cancel()

			if !jsonOutput(c) {
				fmt.Fprintf(c.App.ErrWriter, "📡 Following %s (Ctrl-C to exit)\n", c.String("server-url"))
			}
			err = remote.StreamSnapshots(ctx, func(s snapshot.State) error {
				return output(c, s, func(w io.Writer) { printSnapshot(w, s) })
			})
			if errors.Is(err, ctx.Err()) && ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

func printSnapshot(w io.Writer, s snapshot.State) {
	fmt.Fprintf(w, "%s  %s", time.Now().Format(time.RFC3339), s.Endpoint)
	if s.Commitment != "" {
		fmt.Fprintf(w, " (%s)", s.Commitment)
	}
	if s.LastConnectorID != nil {
		fmt.Fprintf(w, "  wallet %s", *s.LastConnectorID)
	}
	if s.LastPublicKey != nil {
		fmt.Fprintf(w, " as %s", *s.LastPublicKey)
	}
	fmt.Fprintln(w)
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			info := map[string]string{"version": version, "commit": commit, "date": date}
			return output(c, info, func(w io.Writer) {
				fmt.Fprintln(w, "solclient CLI")
				fmt.Fprintf(w, "  Version: %s\n", version)
				fmt.Fprintf(w, "  Commit:  %s\n", commit)
				fmt.Fprintf(w, "  Built:   %s\n", date)
			})
		},
	}
}
