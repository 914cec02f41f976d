package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// RPCBalanceReader reads native balances from a JSON-RPC node. Every call is
// bounded by timeout.
type RPCBalanceReader struct {
	client  *ethclient.Client
	timeout time.Duration
}

func DialBalanceReader(ctx context.Context, rpcUrl string, timeout time.Duration) (*RPCBalanceReader, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("chain rpc timeout must be positive, got %s", timeout)
	}
	client, err := ethclient.DialContext(ctx, rpcUrl)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	return &RPCBalanceReader{client: client, timeout: timeout}, nil
}

// BalanceAt returns the latest balance of address in wei.
func (r *RPCBalanceReader) BalanceAt(ctx context.Context, address string) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.client.BalanceAt(ctx, common.HexToAddress(address), nil)
}

func (r *RPCBalanceReader) Close() {
	r.client.Close()
}
