package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"questchain/crypto"
)

// Client is a minimal JSON-RPC client for questd.
type Client struct {
	endpoint string
	http     *http.Client
	bearer   string
	nextID   atomic.Uint64
	ttl      time.Duration
}

func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/") + "/",
		http:     &http.Client{Timeout: 30 * time.Second},
		ttl:      2 * time.Minute,
	}
}

// WithBearer sets the JWT attached to every request.
func (c *Client) WithBearer(token string) *Client {
	c.bearer = strings.TrimSpace(token)
	return c
}

// Call invokes method with a single parameter object and decodes the result
// into out when out is non-nil.
func (c *Client) Call(ctx context.Context, method string, params interface{}, out interface{}) error {
	req := map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      c.nextID.Add(1),
		"method":  method,
	}
	if params != nil {
		req["params"] = []interface{}{params}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode response (%s): %w", resp.Status, err)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if out == nil || len(decoded.Result) == 0 {
		return nil
	}
	return json.Unmarshal(decoded.Result, out)
}

// CallSigned wraps payload in an envelope signed by key. The nonce is the
// current time in nanoseconds, which is unique per key in practice.
func (c *Client) CallSigned(ctx context.Context, method string, key *crypto.PrivateKey, payload interface{}, out interface{}) error {
	now := time.Now()
	env, err := SignEnvelope(key, method, payload, uint64(now.UnixNano()), now.Add(c.ttl).Unix())
	if err != nil {
		return err
	}
	return c.Call(ctx, method, env, out)
}
