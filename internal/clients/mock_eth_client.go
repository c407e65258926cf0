package clients

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type MockEthClient struct {
	ChainIDFunc            func(ctx context.Context) (*big.Int, error)
	PendingNonceAtFunc     func(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPriceFunc    func(ctx context.Context) (*big.Int, error)
	EstimateGasFunc        func(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransactionFunc    func(ctx context.Context, tx *types.Transaction) error
	TransactionReceiptFunc func(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHashFunc  func(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	BalanceAtFunc          func(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

func (c *MockEthClient) ChainID(ctx context.Context) (*big.Int, error) {
	if c.ChainIDFunc != nil {
		return c.ChainIDFunc(ctx)
	}
	return big.NewInt(1), nil
}

func (c *MockEthClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if c.PendingNonceAtFunc != nil {
		return c.PendingNonceAtFunc(ctx, account)
	}
	return 0, nil
}

func (c *MockEthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if c.SuggestGasPriceFunc != nil {
		return c.SuggestGasPriceFunc(ctx)
	}
	return big.NewInt(1_000_000_000), nil
}

func (c *MockEthClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if c.EstimateGasFunc != nil {
		return c.EstimateGasFunc(ctx, msg)
	}
	return 21000, nil
}

func (c *MockEthClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if c.SendTransactionFunc != nil {
		return c.SendTransactionFunc(ctx, tx)
	}
	return nil
}

func (c *MockEthClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if c.TransactionReceiptFunc != nil {
		return c.TransactionReceiptFunc(ctx, txHash)
	}
	return nil, ethereum.NotFound
}

func (c *MockEthClient) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	if c.TransactionByHashFunc != nil {
		return c.TransactionByHashFunc(ctx, hash)
	}
	return nil, false, ethereum.NotFound
}

func (c *MockEthClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if c.BalanceAtFunc != nil {
		return c.BalanceAtFunc(ctx, account, blockNumber)
	}
	return big.NewInt(0), nil
}

func (c *MockEthClient) Close() {}
