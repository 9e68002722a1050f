package node

import (
	"context"
	"time"
)

// ChainReader read access to the chain used by the mirror
type ChainReader interface {
	TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

var _ ChainReader = (*Client)(nil)

// InitClient builds the chain RPC client used by the mirror.
func InitClient(url, token string, timeout time.Duration) *Client {
	c := NewClient(url, token, timeout)
	log.Infof("Chain RPC client ready: %s", url)
	return c
}
