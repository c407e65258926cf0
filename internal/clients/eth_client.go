package clients

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// EthClient the subset of *ethclient.Client the chain context needs
type EthClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

var _ EthClient = (*ethclient.Client)(nil)

// DialEthClient tries each RPC endpoint in order and returns the first one that answers.
func DialEthClient(ctx context.Context, endpoints []string) (*ethclient.Client, string, error) {
	if len(endpoints) == 0 {
		return nil, "", fmt.Errorf("no RPC endpoints configured")
	}

	var lastErr error
	for i, endpoint := range endpoints {
		log := logrus.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"attempt":  fmt.Sprintf("%d/%d", i+1, len(endpoints)),
		})

		client, err := ethclient.DialContext(ctx, endpoint)
		if err != nil {
			log.WithError(err).Warn("❌ Dial failed")
			lastErr = err
			continue
		}

		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		chainID, err := client.ChainID(checkCtx)
		cancel()
		if err != nil {
			log.WithError(err).Warn("❌ ChainID check failed")
			client.Close()
			lastErr = err
			continue
		}

		log.WithField("chain_id", chainID.String()).Info("✅ RPC connection verified")
		return client, endpoint, nil
	}
	return nil, "", fmt.Errorf("all RPC endpoints failed: %w", lastErr)
}
