package clients

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"
	"time"

	"transfer-backend/internal/config"
	"transfer-backend/internal/utils"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChainInfo(t *testing.T) *utils.ChainInfo {
	info, ok := utils.GlobalChainRegistry.Get(11155111)
	require.True(t, ok)
	return info
}

func newSigningChain(t *testing.T, client EthClient, network config.NetworkConfig) (*EVMChain, common.Address) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	network.PrivateKey = "0x" + hex.EncodeToString(crypto.FromECDSA(key))

	chain, err := NewEVMChain(client, testChainInfo(t), network, 10*time.Millisecond)
	require.NoError(t, err)
	return chain, crypto.PubkeyToAddress(key.PublicKey)
}

func TestSubmitNativeTransfer(t *testing.T) {
	var sent *types.Transaction
	client := &MockEthClient{
		PendingNonceAtFunc:  func(ctx context.Context, account common.Address) (uint64, error) { return 7, nil },
		SuggestGasPriceFunc: func(ctx context.Context) (*big.Int, error) { return big.NewInt(1000), nil },
		SendTransactionFunc: func(ctx context.Context, tx *types.Transaction) error {
			sent = tx
			return nil
		},
	}
	chain, from := newSigningChain(t, client, config.NetworkConfig{})
	assert.Equal(t, from, chain.ActiveAddress())
	assert.True(t, chain.CanSign())

	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	value := big.NewInt(1500000000000000000)
	hash, err := chain.SubmitNativeTransfer(context.Background(), to, value)
	require.NoError(t, err)
	require.NotNil(t, sent)

	assert.Equal(t, sent.Hash(), hash)
	assert.Equal(t, uint64(7), sent.Nonce())
	assert.Equal(t, NativeTransferGas, sent.Gas())
	assert.Equal(t, big.NewInt(1200), sent.GasPrice())
	assert.Equal(t, value, sent.Value())
	assert.Equal(t, to, *sent.To())

	sender, err := types.Sender(types.NewEIP155Signer(big.NewInt(11155111)), sent)
	require.NoError(t, err)
	assert.Equal(t, from, sender)
}

func TestSubmitContractCallGas(t *testing.T) {
	var sent *types.Transaction
	client := &MockEthClient{
		EstimateGasFunc: func(ctx context.Context, msg ethereum.CallMsg) (uint64, error) { return 50000, nil },
		SendTransactionFunc: func(ctx context.Context, tx *types.Transaction) error {
			sent = tx
			return nil
		},
	}
	chain, _ := newSigningChain(t, client, config.NetworkConfig{GasPrice: "5"})

	contract := common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	_, err := chain.SubmitContractCall(context.Background(), contract, []byte{0xa9, 0x05, 0x9c, 0xbb})
	require.NoError(t, err)
	assert.Equal(t, uint64(60000), sent.Gas())
	assert.Equal(t, big.NewInt(5), sent.GasPrice())
	assert.Equal(t, 0, sent.Value().Sign())
	assert.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, sent.Data())
}

func TestSubmitErrors(t *testing.T) {
	readOnly, err := NewEVMChain(&MockEthClient{}, testChainInfo(t), config.NetworkConfig{}, time.Millisecond)
	require.NoError(t, err)
	_, err = readOnly.SubmitNativeTransfer(context.Background(), common.Address{}, big.NewInt(1))
	assert.ErrorIs(t, err, ErrNoSigner)

	rejected := errors.New("insufficient funds for gas * price + value")
	chain, _ := newSigningChain(t, &MockEthClient{
		SendTransactionFunc: func(ctx context.Context, tx *types.Transaction) error { return rejected },
	}, config.NetworkConfig{})
	_, err = chain.SubmitNativeTransfer(context.Background(), common.Address{}, big.NewInt(1))
	assert.ErrorIs(t, err, rejected)

	_, err = NewEVMChain(&MockEthClient{}, testChainInfo(t), config.NetworkConfig{PrivateKey: "zz"}, time.Millisecond)
	assert.Error(t, err)
}

func TestWaitForReceipt(t *testing.T) {
	calls := 0
	client := &MockEthClient{
		TransactionReceiptFunc: func(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
			calls++
			if calls < 3 {
				return nil, ethereum.NotFound
			}
			return &types.Receipt{
				Status:            types.ReceiptStatusSuccessful,
				GasUsed:           21000,
				EffectiveGasPrice: big.NewInt(1_000_000_000),
				BlockNumber:       big.NewInt(42),
			}, nil
		},
	}
	chain, err := NewEVMChain(client, testChainInfo(t), config.NetworkConfig{}, time.Millisecond)
	require.NoError(t, err)

	receipt, err := chain.WaitForReceipt(context.Background(), common.HexToHash("0x01"))
	require.NoError(t, err)
	assert.True(t, receipt.Succeeded())
	assert.Equal(t, uint64(42), receipt.BlockNumber)
	assert.Equal(t, uint64(21000), receipt.GasUsed)
	assert.Equal(t, 3, calls)
}

func TestWaitForReceiptCancelled(t *testing.T) {
	chain, err := NewEVMChain(&MockEthClient{}, testChainInfo(t), config.NetworkConfig{}, time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = chain.WaitForReceipt(ctx, common.HexToHash("0x02"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForReceiptCarriesTransaction(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	info := testChainInfo(t)
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	signed, err := types.SignTx(
		types.NewTransaction(0, to, big.NewInt(7), 21000, big.NewInt(1), []byte{0xde, 0xad}),
		types.LatestSignerForChainID(new(big.Int).SetUint64(info.ChainID)), key)
	require.NoError(t, err)

	client := &MockEthClient{
		TransactionReceiptFunc: func(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
			return &types.Receipt{Status: types.ReceiptStatusSuccessful, GasUsed: 21000, BlockNumber: big.NewInt(1)}, nil
		},
		TransactionByHashFunc: func(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
			return signed, false, nil
		},
	}
	chain, err := NewEVMChain(client, info, config.NetworkConfig{}, time.Millisecond)
	require.NoError(t, err)

	receipt, err := chain.WaitForReceipt(context.Background(), signed.Hash())
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), receipt.From)
	require.NotNil(t, receipt.To)
	assert.Equal(t, to, *receipt.To)
	assert.Equal(t, "7", receipt.Value.String())
	assert.Equal(t, []byte{0xde, 0xad}, receipt.Input)
}
