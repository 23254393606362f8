package cmd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/warnwin/cli/render"
	"github.com/pithecene-io/warnwin/wire"
)

// EncodedFrame is the response for debug wire encode.
type EncodedFrame struct {
	Size int    `json:"size" yaml:"size"`
	Hex  string `json:"hex" yaml:"hex"`
}

// DecodedFrame is the response for debug wire decode.
type DecodedFrame struct {
	Version    uint8  `json:"version" yaml:"version"`
	Kind       string `json:"kind" yaml:"kind"`
	Length     uint32 `json:"length" yaml:"length"`
	Consumed   int    `json:"consumed" yaml:"consumed"`
	Text       string `json:"text" yaml:"text"`
	DurationMs uint32 `json:"duration_ms" yaml:"duration_ms"`
	Urgency    string `json:"urgency" yaml:"urgency"`
	Sender     string `json:"sender,omitempty" yaml:"sender,omitempty"`
	// Trailing counts bytes after the first frame.
	Trailing int `json:"trailing" yaml:"trailing"`
}

// DebugCommand returns the debug command with subcommands.
// Debug commands are opt-in diagnostic tools and never contact a server.
func DebugCommand() *cli.Command {
	return &cli.Command{
		Name:  "debug",
		Usage: "Diagnostic tools (wire)",
		Subcommands: []*cli.Command{
			debugWireCommand(),
		},
	}
}

func debugWireCommand() *cli.Command {
	return &cli.Command{
		Name:  "wire",
		Usage: "Encode or decode notification frames",
		Subcommands: []*cli.Command{
			{
				Name:      "encode",
				Usage:     "Print the frame `warnwin send` would write",
				ArgsUsage: "<text...>",
				Flags: append(ReadOnlyFlags(),
					&cli.DurationFlag{Name: "duration", Aliases: []string{"d"}, Value: defaultSendDuration},
					&cli.StringFlag{Name: "urgency", Aliases: []string{"u"}, Value: "normal"},
					&cli.StringFlag{Name: "sender", Aliases: []string{"s"}},
				),
				Action: debugWireEncodeAction,
			},
			{
				Name:      "decode",
				Usage:     "Decode a hex frame (argument or stdin)",
				ArgsUsage: "[<hex>]",
				Flags:     ReadOnlyFlags(),
				Action:    debugWireDecodeAction,
			},
		},
	}
}

func debugWireEncodeAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for debug commands
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug commands", 1)
	}

	text, err := sendText(c.Args().Slice(), os.Stdin)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	p, err := buildPayload(text, c.Duration("duration"), c.String("urgency"), c.String("sender"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	frame, err := wire.Encode(p)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return r.Render(EncodedFrame{Size: len(frame), Hex: hex.EncodeToString(frame)})
}

func debugWireDecodeAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug commands", 1)
	}

	input := c.Args().First()
	if input == "" {
		data, err := io.ReadAll(io.LimitReader(os.Stdin, 4*wire.MaxFrameSize))
		if err != nil {
			return cli.Exit(fmt.Sprintf("reading stdin: %v", err), 1)
		}
		input = string(data)
	}

	decoded, err := decodeHexFrame(input)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return r.Render(decoded)
}

// decodeHexFrame decodes the first frame in a hex string. Whitespace is
// ignored so hexdump-style input works.
func decodeHexFrame(s string) (*DecodedFrame, error) {
	s = strings.Join(strings.Fields(s), "")
	buf, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}

	frame, n, err := wire.Decode(buf)
	if err != nil {
		var pe *wire.ProtocolError
		switch {
		case errors.Is(err, wire.ErrIncomplete):
			return nil, fmt.Errorf("incomplete frame: %d bytes", len(buf))
		case errors.As(err, &pe):
			return nil, fmt.Errorf("protocol error (%s): %v", pe.Kind, pe)
		default:
			return nil, err
		}
	}

	return &DecodedFrame{
		Version:    frame.Version,
		Kind:       frame.Kind.String(),
		Length:     frame.Length,
		Consumed:   n,
		Text:       frame.Notify.Text,
		DurationMs: frame.Notify.DurationMs,
		Urgency:    frame.Notify.Urgency.String(),
		Sender:     frame.Notify.Sender,
		Trailing:   len(buf) - n,
	}, nil
}
