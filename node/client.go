package node

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/imroc/req"
	"github.com/tidwall/gjson"

	"trust-fund-service/apperr"
)

// Client JSON-RPC client of an EVM node
type Client struct {
	url   string
	token string
	r     *req.Req
	seq   atomic.Int64
}

// NewClient builds a client for url. token, when set, is sent as a bearer
// credential.
func NewClient(url, token string, timeout time.Duration) *Client {
	r := req.New()
	r.SetTimeout(timeout)
	return &Client{url: url, token: token, r: r}
}

func upstream(format string, args ...interface{}) error {
	return apperr.Newf(apperr.CodeUpstreamFailure, format, args...)
}

// Call invokes method and returns the raw result.
func (c *Client) Call(ctx context.Context, method string, params ...interface{}) (gjson.Result, error) {
	if params == nil {
		params = []interface{}{}
	}
	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      c.seq.Add(1),
		"method":  method,
		"params":  params,
	}
	header := req.Header{"Content-Type": "application/json"}
	if c.token != "" {
		header["Authorization"] = "Bearer " + c.token
	}

	resp, err := c.r.Post(c.url, header, req.BodyJSON(body), ctx)
	if err != nil {
		log.Warnf("%s: %v", method, err)
		return gjson.Result{}, apperr.Wrap(apperr.CodeUpstreamFailure, "chain node unreachable", err)
	}
	if code := resp.Response().StatusCode; code != http.StatusOK {
		return gjson.Result{}, upstream("chain node answered %s with HTTP %d", method, code)
	}

	data := resp.Bytes()
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, upstream("chain node sent malformed JSON for %s", method)
	}
	res := gjson.ParseBytes(data)
	if e := res.Get("error"); e.Exists() && e.Type != gjson.Null {
		return gjson.Result{}, upstream("%s failed: %s (code %d)", method, e.Get("message").String(), e.Get("code").Int())
	}
	return res.Get("result"), nil
}

// ReceiptStatus outcome of a mined transaction
type ReceiptStatus int

const (
	ReceiptNotFound ReceiptStatus = iota // Not mined, or unknown to the node
	ReceiptSuccess
	ReceiptReverted
)

func (s ReceiptStatus) String() string {
	switch s {
	case ReceiptSuccess:
		return "success"
	case ReceiptReverted:
		return "reverted"
	default:
		return "not_found"
	}
}

// Receipt transaction receipt fields the mirror cares about
type Receipt struct {
	TxHash      string
	Status      ReceiptStatus
	BlockNumber uint64
	From        string
	To          string
}

// TransactionReceipt fetches the receipt of txHash.
func (c *Client) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	res, err := c.Call(ctx, "eth_getTransactionReceipt", txHash)
	if err != nil {
		return nil, err
	}
	if !res.Exists() || res.Type == gjson.Null {
		return &Receipt{TxHash: txHash, Status: ReceiptNotFound}, nil
	}

	rc := &Receipt{
		TxHash: strings.ToLower(res.Get("transactionHash").String()),
		From:   strings.ToLower(res.Get("from").String()),
		To:     strings.ToLower(res.Get("to").String()),
	}
	if rc.BlockNumber, err = parseQuantity(res.Get("blockNumber").String()); err != nil {
		return nil, upstream("bad blockNumber in receipt of %s", txHash)
	}
	switch res.Get("status").String() {
	case "0x1":
		rc.Status = ReceiptSuccess
	case "0x0":
		rc.Status = ReceiptReverted
	default:
		return nil, upstream("unknown receipt status %q for %s", res.Get("status").String(), txHash)
	}
	return rc, nil
}

// BlockNumber returns the latest block height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	res, err := c.Call(ctx, "eth_blockNumber")
	if err != nil {
		return 0, err
	}
	n, err := parseQuantity(res.String())
	if err != nil {
		return 0, upstream("bad eth_blockNumber result %q", res.String())
	}
	return n, nil
}

// parseQuantity decodes a 0x-prefixed hex quantity.
func parseQuantity(s string) (uint64, error) {
	if !strings.HasPrefix(s, "0x") {
		return 0, fmt.Errorf("missing 0x prefix: %q", s)
	}
	return strconv.ParseUint(s[2:], 16, 64)
}
