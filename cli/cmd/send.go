package cmd

import (
	"context"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warnwin/ingest"
	"github.com/pithecene-io/warnwin/types"
	"github.com/pithecene-io/warnwin/wire"
)

// Send defaults.
const (
	defaultSendDuration = 3 * time.Second
	defaultDialTimeout  = 5 * time.Second
)

// SendCommand returns the send command.
func SendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Send one notification to a running server",
		ArgsUsage: "<text...> (use - to read stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "Server address",
				Value:   ingest.DefaultAddress,
				EnvVars: []string{"WARNWIN_ADDR"},
			},
			&cli.DurationFlag{
				Name:    "duration",
				Aliases: []string{"d"},
				Usage:   "How long the notification stays visible",
				Value:   defaultSendDuration,
			},
			&cli.StringFlag{
				Name:    "urgency",
				Aliases: []string{"u"},
				Usage:   "Urgency: low, normal, high, critical",
				Value:   types.UrgencyNormal.String(),
			},
			&cli.StringFlag{
				Name:    "sender",
				Aliases: []string{"s"},
				Usage:   "Sender name shown with the notification",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Dial and write timeout",
				Value: defaultDialTimeout,
			},
		},
		Action: sendAction,
	}
}

func sendAction(c *cli.Context) error {
	text, err := sendText(c.Args().Slice(), os.Stdin)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	payload, err := buildPayload(text, c.Duration("duration"), c.String("urgency"), c.String("sender"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()
	if err := send(ctx, c.String("addr"), payload); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

// sendText joins args, or reads stdin when the only arg is "-".
func sendText(args []string, stdin io.Reader) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("notification text required")
	}
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(io.LimitReader(stdin, wire.MaxTextBytes+1))
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return strings.TrimRight(string(data), "\n"), nil
	}
	return strings.Join(args, " "), nil
}

// buildPayload validates client-side input. The server still clamps
// duration and text to its own bounds.
func buildPayload(text string, duration time.Duration, urgency, sender string) (wire.NotifyPayload, error) {
	u, err := types.ParseUrgency(urgency)
	if err != nil {
		return wire.NotifyPayload{}, err
	}
	if duration < 0 {
		return wire.NotifyPayload{}, fmt.Errorf("duration must not be negative: %s", duration)
	}
	ms := duration.Milliseconds()
	if ms > math.MaxUint32 {
		ms = math.MaxUint32
	}
	p := wire.NotifyPayload{
		Text:       text,
		DurationMs: uint32(ms),
		Urgency:    u,
		Sender:     sender,
	}
	if err := p.Validate(); err != nil {
		return wire.NotifyPayload{}, err
	}
	return p, nil
}

// send writes one Notify frame and closes the connection.
func send(ctx context.Context, addr string, p wire.NotifyPayload) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if err := wire.WriteNotify(conn, p); err != nil {
		return fmt.Errorf("sending to %s: %w", addr, err)
	}
	return nil
}
