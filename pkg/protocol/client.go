package protocol

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odvcencio/gitmirror/pkg/transport"
)

// ErrUnsupportedProtocol is returned when the remote does not advertise
// Git protocol v2.
var ErrUnsupportedProtocol = errors.New("remote does not support protocol version 2")

// ErrRefNotFound is returned when a requested branch or tag cannot be
// resolved from the ls-refs advertisement.
var ErrRefNotFound = errors.New("ref not found")

// Client speaks the Git v2 smart-HTTP protocol against a single
// repository path on a single host.
type Client struct {
	Host      string
	Port      int
	RepoPath  string
	UseTLS    bool
	Proxy     *transport.ProxyConfig
	IOTimeout time.Duration

	// Progress, if set, drives a live rate display while a response body
	// (the fetch packfile, in particular) streams in.
	Progress *transport.Meter
}

func (c *Client) dialOpts() transport.DialOptions {
	return transport.DialOptions{
		Host:      c.Host,
		Port:      c.Port,
		UseTLS:    c.UseTLS,
		Proxy:     c.Proxy,
		IOTimeout: c.IOTimeout,
	}
}

func (c *Client) request(ctx context.Context, method, path string, headers map[string]string, body []byte, progress *transport.Meter) (*transport.Response, error) {
	conn, err := transport.Dial(ctx, c.dialOpts())
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := transport.SetIOTimeout(conn, c.IOTimeout); err != nil {
		return nil, fmt.Errorf("set io timeout: %w", err)
	}

	req := &transport.Request{
		Method:   method,
		Path:     path,
		Host:     c.Host,
		Headers:  headers,
		Body:     body,
		Progress: progress,
	}
	return transport.Exchange(conn, req)
}

// DiscoverV2 issues the info/refs discovery request and confirms the
// remote speaks protocol v2.
func (c *Client) DiscoverV2(ctx context.Context) error {
	path := fmt.Sprintf("%s/info/refs?service=git-upload-pack", c.RepoPath)
	resp, err := c.request(ctx, "GET", path, map[string]string{
		"Git-Protocol": "version=2",
	}, nil, nil)
	if err != nil {
		return fmt.Errorf("discover refs: %w", err)
	}
	if !ContainsVersion2(resp.Body) {
		return ErrUnsupportedProtocol
	}
	return nil
}

// LsRefs issues the ls-refs command and returns the advertised refs
// matching HEAD, refs/heads/*, and refs/tags/*.
func (c *Client) LsRefs(ctx context.Context) ([]RefEntry, error) {
	var body bytes.Buffer
	WritePktLineString(&body, "command=ls-refs\n")
	WriteDelim(&body)
	WritePktLineString(&body, "peel\n")
	WritePktLineString(&body, "symrefs\n")
	WritePktLineString(&body, "ref-prefix HEAD\n")
	WritePktLineString(&body, "ref-prefix refs/heads/\n")
	WritePktLineString(&body, "ref-prefix refs/tags/\n")
	WriteFlush(&body)

	resp, err := c.postUploadPack(ctx, body.Bytes(), nil)
	if err != nil {
		return nil, fmt.Errorf("ls-refs: %w", err)
	}
	return ParseLsRefs(resp.Body)
}

// Fetch issues a fetch command with the given argument lines (each
// without its trailing newline) and returns the extracted packfile bytes;
// their checksum is not checked here (object.ReadPack verifies it). If
// c.Progress is set, it tracks the response body as it
// streams in and its display line is cleared once extraction finishes.
func (c *Client) Fetch(ctx context.Context, args []string) ([]byte, error) {
	var body bytes.Buffer
	WritePktLineString(&body, "command=fetch\n")
	WriteDelim(&body)
	for _, a := range args {
		WritePktLineString(&body, a+"\n")
	}
	WritePktLineString(&body, "done\n")
	WriteFlush(&body)

	resp, err := c.postUploadPack(ctx, body.Bytes(), c.Progress)
	if c.Progress != nil {
		c.Progress.Done()
	}
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	return ExtractPack(resp.Body)
}

func (c *Client) postUploadPack(ctx context.Context, body []byte, progress *transport.Meter) (*transport.Response, error) {
	path := fmt.Sprintf("%s/git-upload-pack", c.RepoPath)
	return c.request(ctx, "POST", path, map[string]string{
		"Content-Type": "application/x-git-upload-pack-request",
		"Accept":       "application/x-git-upload-pack-result",
		"Git-Protocol": "version=2",
	}, body, progress)
}
