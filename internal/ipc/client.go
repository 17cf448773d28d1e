package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client talks to the daemon over its Unix socket.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for the given socket path.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, timeout: 30 * time.Second}
}

// Ping reports whether the daemon answers.
func (c *Client) Ping() error {
	_, err := c.send(Request{Command: CmdPing})
	return err
}

// Status fetches the daemon status block.
func (c *Client) Status() (*StatusData, error) {
	var status StatusData
	if err := c.Call(Request{Command: CmdStatus}, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// RequestStop asks the daemon to shut down.
func (c *Client) RequestStop() error {
	_, err := c.send(Request{Command: CmdStop})
	return err
}

// Call sends the request and decodes the response data into out, which
// must be a pointer. A nil out discards the data.
func (c *Client) Call(req Request, out any) error {
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	if out == nil || resp.Data == nil {
		return nil
	}
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return fmt.Errorf("re-encode response data: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

func (c *Client) send(req Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		return nil, fmt.Errorf("empty response from daemon")
	}

	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return &resp, nil
}
