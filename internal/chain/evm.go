package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/avanomad/avanomad/internal/keys"
)

const nativeDecimals = 18

// erc20ABI covers the calls made against the mintable token.
const erc20ABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

var (
	erc20 = mustParseABI(erc20ABI)

	balanceOfSelector = erc20.Methods["balanceOf"].ID
	transferSelector  = erc20.Methods["transfer"].ID
	mintSelector      = erc20.Methods["mint"].ID
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse erc20 abi: %v", err))
	}
	return parsed
}

// Backend is the subset of *ethclient.Client used by EVM.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// EVMConfig configures an ERC-20 backed gateway.
type EVMConfig struct {
	TokenAddress string
	Decimals     int32
	Faucet       *keys.Identity
}

// EVM talks to an EVM JSON-RPC node holding a mintable ERC-20 token.
type EVM struct {
	backend  Backend
	token    common.Address
	decimals int32
	faucet   *keys.Identity

	// faucetMu serialises faucet nonces.
	faucetMu sync.Mutex

	chainMu sync.Mutex
	chainID *big.Int
}

// DialEVM connects to rpcURL and returns a gateway.
func DialEVM(ctx context.Context, rpcURL string, cfg EVMConfig) (*EVM, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rpc: %w", err)
	}
	gw, err := NewEVM(client, cfg)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return gw, client, nil
}

// NewEVM builds a gateway over an existing backend.
func NewEVM(backend Backend, cfg EVMConfig) (*EVM, error) {
	if !common.IsHexAddress(cfg.TokenAddress) {
		return nil, &keys.ConfigurationError{Setting: "TOKEN_ADDRESS", Err: ErrInvalidAddress}
	}
	if cfg.Faucet == nil {
		return nil, &keys.ConfigurationError{Setting: "FAUCET_PRIVATE_KEY"}
	}
	return &EVM{
		backend:  backend,
		token:    common.HexToAddress(cfg.TokenAddress),
		decimals: cfg.Decimals,
		faucet:   cfg.Faucet,
	}, nil
}

func (e *EVM) Ping(ctx context.Context) error {
	if _, err := e.networkID(ctx); err != nil {
		return err
	}
	code, err := e.backend.CodeAt(ctx, e.token, nil)
	if err != nil {
		return fmt.Errorf("read token code: %w", err)
	}
	if len(code) == 0 {
		return fmt.Errorf("no contract deployed at %s", e.token.Hex())
	}
	return nil
}

func (e *EVM) Operator() string { return e.faucet.Address() }

func (e *EVM) NativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return decimal.Zero, err
	}
	wei, err := e.backend.BalanceAt(ctx, addr, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("native balance: %w", err)
	}
	return decimal.NewFromBigInt(wei, -nativeDecimals), nil
}

func (e *EVM) TokenBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return decimal.Zero, err
	}
	data, err := erc20.Pack("balanceOf", addr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pack balanceOf: %w", err)
	}
	out, err := e.backend.CallContract(ctx, ethereum.CallMsg{To: &e.token, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("token balance: %w", err)
	}
	values, err := erc20.Unpack("balanceOf", out)
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode balanceOf: %w", err)
	}
	units, ok := values[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("decode balanceOf: unexpected %T", values[0])
	}
	return decimal.NewFromBigInt(units, -e.decimals), nil
}

func (e *EVM) Transfer(ctx context.Context, from *keys.Identity, to string, amount decimal.Decimal) (string, error) {
	dst, err := parseAddress(to)
	if err != nil {
		return "", err
	}
	units, err := toUnits(amount, e.decimals)
	if err != nil {
		return "", err
	}
	balance, err := e.TokenBalance(ctx, from.Address())
	if err != nil {
		return "", err
	}
	if balance.LessThan(amount) {
		return "", ErrInsufficientFunds
	}
	data, err := erc20.Pack("transfer", dst, units)
	if err != nil {
		return "", fmt.Errorf("pack transfer: %w", err)
	}
	return e.send(ctx, from.PrivateKey(), e.token, big.NewInt(0), data)
}

func (e *EVM) Mint(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	dst, err := parseAddress(to)
	if err != nil {
		return "", err
	}
	units, err := toUnits(amount, e.decimals)
	if err != nil {
		return "", err
	}
	data, err := erc20.Pack("mint", dst, units)
	if err != nil {
		return "", fmt.Errorf("pack mint: %w", err)
	}
	e.faucetMu.Lock()
	defer e.faucetMu.Unlock()
	return e.send(ctx, e.faucet.PrivateKey(), e.token, big.NewInt(0), data)
}

func (e *EVM) FundGas(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	dst, err := parseAddress(to)
	if err != nil {
		return "", err
	}
	wei, err := toUnits(amount, nativeDecimals)
	if err != nil {
		return "", err
	}
	e.faucetMu.Lock()
	defer e.faucetMu.Unlock()
	return e.send(ctx, e.faucet.PrivateKey(), dst, wei, nil)
}

func (e *EVM) Receipt(ctx context.Context, txHash string) (*Receipt, error) {
	r, err := e.backend.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transaction receipt: %w", err)
	}
	out := &Receipt{TxHash: r.TxHash.Hex(), Success: r.Status == types.ReceiptStatusSuccessful}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	return out, nil
}

func (e *EVM) send(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, value *big.Int, data []byte) (string, error) {
	from := crypto.PubkeyToAddress(key.PublicKey)

	chainID, err := e.networkID(ctx)
	if err != nil {
		return "", err
	}
	nonce, err := e.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := e.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}
	gas, err := e.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: data})
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	if err := e.backend.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	return signed.Hash().Hex(), nil
}

func (e *EVM) networkID(ctx context.Context) (*big.Int, error) {
	e.chainMu.Lock()
	defer e.chainMu.Unlock()
	if e.chainID != nil {
		return e.chainID, nil
	}
	id, err := e.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	e.chainID = id
	return id, nil
}

// toUnits scales amount to integer base units, truncating extra precision.
func toUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	units := amount.Shift(decimals).Truncate(0).BigInt()
	if units.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	return units, nil
}
