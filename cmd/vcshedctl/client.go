// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/gob"
	"fmt"
	"net"

	"vcshed/internal/protocol"
)

// Client is a connection to vcshedd's control socket, adapted from
// perflock's request/response Client.
type Client struct {
	c  net.Conn
	gr *gob.Decoder
	gw *gob.Encoder
}

func NewClient(socketPath string) (*Client, error) {
	c, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	return &Client{c: c, gr: gob.NewDecoder(c), gw: gob.NewEncoder(c)}, nil
}

func (c *Client) Close() error { return c.c.Close() }

func (c *Client) do(action interface{}) (protocol.Response, error) {
	if err := c.gw.Encode(protocol.Action{Action: action}); err != nil {
		return protocol.Response{}, fmt.Errorf("sending request: %w", err)
	}
	var resp protocol.Response
	if err := c.gr.Decode(&resp); err != nil {
		return protocol.Response{}, fmt.Errorf("reading response: %w", err)
	}
	if resp.Err != "" {
		return resp, fmt.Errorf("%s", resp.Err)
	}
	return resp, nil
}
