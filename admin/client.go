package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pithecene-io/warnwin/iox"
	"github.com/pithecene-io/warnwin/ipc"
	"github.com/pithecene-io/warnwin/types"
)

// RemoteError is a request the server answered with a failure.
type RemoteError struct {
	Op  ipc.Op
	Msg string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("admin %s: %s", e.Op, e.Msg)
}

// IsRemoteError returns true if err is or wraps a *RemoteError.
func IsRemoteError(err error) bool {
	var remoteErr *RemoteError
	return errors.As(err, &remoteErr)
}

// Client sends requests to an admin server.
type Client struct {
	network string
	address string
	timeout time.Duration
}

// NewClient returns a client for addr (see ParseAddress).
func NewClient(addr string, timeout time.Duration) (*Client, error) {
	network, address, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{network: network, address: address, timeout: timeout}, nil
}

// Do sends req over a fresh connection and returns the response.
// A response with OK=false is returned together with a *RemoteError.
func (c *Client) Do(ctx context.Context, req *ipc.Request) (*ipc.Response, error) {
	if req.Type == "" {
		req.Type = ipc.RequestType
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, c.network, c.address)
	if err != nil {
		return nil, fmt.Errorf("connecting to admin socket %s: %w", c.address, err)
	}
	defer iox.DiscardClose(conn)

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if err := ipc.WriteFrame(conn, req); err != nil {
		return nil, fmt.Errorf("sending admin request: %w", err)
	}

	payload, err := ipc.NewFrameDecoder(conn).ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("reading admin response: %w", err)
	}
	var resp ipc.Response
	if err := ipc.Decode(payload, &resp); err != nil {
		return nil, fmt.Errorf("decoding admin response: %w", err)
	}
	if !resp.OK {
		return &resp, &RemoteError{Op: req.Op, Msg: resp.Error}
	}
	return &resp, nil
}

// List returns the latest published snapshot.
func (c *Client) List(ctx context.Context) (*types.Snapshot, error) {
	resp, err := c.Do(ctx, ipc.NewRequest(ipc.OpList))
	if err != nil {
		return nil, err
	}
	if resp.Snapshot == nil {
		return &types.Snapshot{}, nil
	}
	return resp.Snapshot, nil
}

// Stats returns the server's counters and active notification count.
func (c *Client) Stats(ctx context.Context) (*ipc.Response, error) {
	return c.Do(ctx, ipc.NewRequest(ipc.OpStats))
}

// Dismiss asks the server to start retiring notification id.
func (c *Client) Dismiss(ctx context.Context, id uint64) error {
	req := ipc.NewRequest(ipc.OpDismiss)
	req.ID = id
	_, err := c.Do(ctx, req)
	return err
}

// Clear dismisses every active notification and returns how many were
// entering or visible.
func (c *Client) Clear(ctx context.Context) (int, error) {
	resp, err := c.Do(ctx, ipc.NewRequest(ipc.OpClear))
	if err != nil {
		return 0, err
	}
	return resp.Dismissed, nil
}
