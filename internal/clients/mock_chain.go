package clients

import (
	"context"
	"math/big"

	"transfer-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
)

type MockChain struct {
	Address                  common.Address
	Info                     *utils.ChainInfo
	SubmitNativeTransferFunc func(ctx context.Context, to common.Address, value *big.Int) (common.Hash, error)
	SubmitContractCallFunc   func(ctx context.Context, contract common.Address, data []byte) (common.Hash, error)
	WaitForReceiptFunc       func(ctx context.Context, hash common.Hash) (*Receipt, error)
	BalanceFunc              func(ctx context.Context) (*big.Int, error)
}

func (c *MockChain) ActiveAddress() common.Address { return c.Address }

func (c *MockChain) ActiveChain() *utils.ChainInfo { return c.Info }

func (c *MockChain) SubmitNativeTransfer(ctx context.Context, to common.Address, value *big.Int) (common.Hash, error) {
	if c.SubmitNativeTransferFunc != nil {
		return c.SubmitNativeTransferFunc(ctx, to, value)
	}
	return common.Hash{}, nil
}

func (c *MockChain) SubmitContractCall(ctx context.Context, contract common.Address, data []byte) (common.Hash, error) {
	if c.SubmitContractCallFunc != nil {
		return c.SubmitContractCallFunc(ctx, contract, data)
	}
	return common.Hash{}, nil
}

// WaitForReceipt blocks until ctx is done when no func is set
func (c *MockChain) WaitForReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	if c.WaitForReceiptFunc != nil {
		return c.WaitForReceiptFunc(ctx, hash)
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *MockChain) Balance(ctx context.Context) (*big.Int, error) {
	if c.BalanceFunc != nil {
		return c.BalanceFunc(ctx)
	}
	return big.NewInt(0), nil
}
