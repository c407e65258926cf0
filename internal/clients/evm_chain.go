package clients

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"transfer-backend/internal/config"
	"transfer-backend/internal/utils"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// NativeTransferGas gas of a plain value transfer
const NativeTransferGas uint64 = 21000

const defaultContractGas uint64 = 100000

// ErrNoSigner the chain context was built without a private key
var ErrNoSigner = errors.New("no signer configured for this chain")

// Receipt terminal inclusion data for a submission
type Receipt struct {
	Status            uint64
	GasUsed           uint64
	EffectiveGasPrice *big.Int // nil when the node does not report it
	BlockNumber       uint64
	From              common.Address // zero when the sender could not be recovered

	// transaction body, when the node returned it
	To    *common.Address
	Value *big.Int
	Input []byte
}

// Succeeded reports whether the receipt has status 1
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == types.ReceiptStatusSuccessful
}

// Chain signer and chain context for one network
type Chain interface {
	ActiveAddress() common.Address
	ActiveChain() *utils.ChainInfo
	SubmitNativeTransfer(ctx context.Context, to common.Address, value *big.Int) (common.Hash, error)
	SubmitContractCall(ctx context.Context, contract common.Address, data []byte) (common.Hash, error)
	// WaitForReceipt blocks until the hash is included or ctx ends.
	WaitForReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
	Balance(ctx context.Context) (*big.Int, error)
}

// EVMChain Chain backed by an EthClient and an optional local key
type EVMChain struct {
	client       EthClient
	info         *utils.ChainInfo
	chainID      *big.Int
	key          *ecdsa.PrivateKey
	address      common.Address
	gasPrice     string
	gasLimit     uint64
	pollInterval time.Duration

	nonceMu sync.Mutex
}

// NewEVMChain builds a chain context. Without a private key the context can only watch receipts.
func NewEVMChain(client EthClient, info *utils.ChainInfo, network config.NetworkConfig, pollInterval time.Duration) (*EVMChain, error) {
	if info == nil {
		return nil, fmt.Errorf("chain info is required")
	}
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}

	c := &EVMChain{
		client:       client,
		info:         info,
		chainID:      new(big.Int).SetUint64(info.ChainID),
		gasPrice:     network.GasPrice,
		gasLimit:     network.GasLimit,
		pollInterval: pollInterval,
	}

	if pk := strings.TrimPrefix(strings.TrimSpace(network.PrivateKey), "0x"); pk != "" {
		key, err := crypto.HexToECDSA(pk)
		if err != nil {
			return nil, fmt.Errorf("invalid private key for chain %d: %w", info.ChainID, err)
		}
		c.key = key
		c.address = crypto.PubkeyToAddress(key.PublicKey)
	}
	return c, nil
}

// DialEVMChain dials the chain's RPC endpoints and checks the node reports the expected chain id.
func DialEVMChain(ctx context.Context, info *utils.ChainInfo, network config.NetworkConfig, pollInterval time.Duration) (*EVMChain, error) {
	endpoints := network.RPCEndpoints
	if len(endpoints) == 0 {
		endpoints = info.RPCEndpoints
	}
	client, endpoint, err := DialEthClient(ctx, endpoints)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", info.Name, err)
	}

	reported, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to read chain id from %s: %w", endpoint, err)
	}
	if reported.Uint64() != info.ChainID {
		client.Close()
		return nil, fmt.Errorf("endpoint %s reports chain %s, expected %d", endpoint, reported, info.ChainID)
	}

	return NewEVMChain(client, info, network, pollInterval)
}

// CanSign reports whether a local key is loaded
func (c *EVMChain) CanSign() bool { return c.key != nil }

func (c *EVMChain) ActiveAddress() common.Address { return c.address }

func (c *EVMChain) ActiveChain() *utils.ChainInfo { return c.info }

// Close releases the RPC connection
func (c *EVMChain) Close() { c.client.Close() }

// SubmitNativeTransfer sends value wei to to
func (c *EVMChain) SubmitNativeTransfer(ctx context.Context, to common.Address, value *big.Int) (common.Hash, error) {
	return c.submit(ctx, &to, value, nil, NativeTransferGas)
}

// SubmitContractCall sends a zero-value call carrying data to contract
func (c *EVMChain) SubmitContractCall(ctx context.Context, contract common.Address, data []byte) (common.Hash, error) {
	gas := c.gasLimit
	if gas == 0 {
		estimated, err := c.client.EstimateGas(ctx, ethereum.CallMsg{From: c.address, To: &contract, Data: data})
		if err != nil {
			logrus.WithError(err).WithField("contract", contract.Hex()).Warn("⚠️ [EVMChain] gas estimation failed, using default limit")
			gas = defaultContractGas
		} else {
			gas = estimated * 120 / 100
		}
	}
	return c.submit(ctx, &contract, big.NewInt(0), data, gas)
}

func (c *EVMChain) submit(ctx context.Context, to *common.Address, value *big.Int, data []byte, gas uint64) (common.Hash, error) {
	if c.key == nil {
		return common.Hash{}, ErrNoSigner
	}

	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := c.resolveGasPrice(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       to,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"chain_id":  c.info.ChainID,
		"tx_hash":   signed.Hash().Hex(),
		"nonce":     nonce,
		"gas":       gas,
		"gas_price": gasPrice.String(),
	}).Info("📤 [EVMChain] Transaction submitted")

	return signed.Hash(), nil
}

// resolveGasPrice uses the configured price, else the node suggestion plus 20%
func (c *EVMChain) resolveGasPrice(ctx context.Context) (*big.Int, error) {
	if c.gasPrice != "" && c.gasPrice != "auto" {
		price, ok := new(big.Int).SetString(c.gasPrice, 10)
		if !ok {
			return nil, fmt.Errorf("invalid configured gas price %q", c.gasPrice)
		}
		return price, nil
	}
	suggested, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas price: %w", err)
	}
	price := new(big.Int).Mul(suggested, big.NewInt(120))
	return price.Div(price, big.NewInt(100)), nil
}

// WaitForReceipt polls for the receipt until it appears or ctx is done.
func (c *EVMChain) WaitForReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	polls := 0
	for {
		polls++
		receipt, err := c.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			return c.convertReceipt(ctx, hash, receipt), nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			logrus.WithError(err).WithFields(logrus.Fields{
				"tx_hash": hash.Hex(),
				"poll":    polls,
			}).Warn("⚠️ [EVMChain] Error querying receipt, will retry")
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *EVMChain) convertReceipt(ctx context.Context, hash common.Hash, r *types.Receipt) *Receipt {
	out := &Receipt{
		Status:  r.Status,
		GasUsed: r.GasUsed,
	}
	if r.EffectiveGasPrice != nil {
		out.EffectiveGasPrice = new(big.Int).Set(r.EffectiveGasPrice)
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}

	// the receipt does not carry the sender; recover it from the transaction when possible
	tx, _, err := c.client.TransactionByHash(ctx, hash)
	if err == nil && tx != nil {
		if from, err := types.Sender(types.LatestSignerForChainID(c.chainID), tx); err == nil {
			out.From = from
		}
		out.To = tx.To()
		out.Value = tx.Value()
		out.Input = tx.Data()
	}
	return out
}

// Balance native balance of the signer address in wei
func (c *EVMChain) Balance(ctx context.Context) (*big.Int, error) {
	if c.key == nil {
		return nil, ErrNoSigner
	}
	return c.client.BalanceAt(ctx, c.address, nil)
}
