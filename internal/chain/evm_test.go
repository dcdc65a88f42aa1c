package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/avanomad/avanomad/internal/keys"
)

const tokenAddr = "0x5425890298aed601595a70AB815c96711a31Bc65"

type fakeBackend struct {
	chainID  *big.Int
	code     []byte
	balance  *big.Int
	tokenBal *big.Int
	callOut  []byte
	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		chainID:  big.NewInt(43113),
		code:     []byte{0x60, 0x80},
		balance:  big.NewInt(0),
		tokenBal: big.NewInt(0),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return f.chainID, nil }
func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return f.code, nil
}
func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return f.balance, nil
}
func (f *fakeBackend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if !bytes.Equal(call.Data[:4], balanceOfSelector) {
		return nil, errors.New("unexpected call")
	}
	if f.callOut != nil {
		return f.callOut, nil
	}
	return common.LeftPadBytes(f.tokenBal.Bytes(), 32), nil
}
func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return uint64(len(f.sent)), nil
}
func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) { return big.NewInt(25e9), nil }
func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 60_000, nil
}
func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.sent = append(f.sent, tx)
	return nil
}
func (f *fakeBackend) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	r, ok := f.receipts[h]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func newTestEVM(t *testing.T) (*EVM, *fakeBackend, *keys.Identity) {
	t.Helper()
	faucet, err := keys.ParsePrivateKey("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	if err != nil {
		t.Fatalf("faucet key: %v", err)
	}
	backend := newFakeBackend()
	gw, err := NewEVM(backend, EVMConfig{TokenAddress: tokenAddr, Decimals: 6, Faucet: faucet})
	if err != nil {
		t.Fatalf("new evm: %v", err)
	}
	return gw, backend, faucet
}

func TestSelectors(t *testing.T) {
	cases := map[string][]byte{
		"70a08231": balanceOfSelector,
		"a9059cbb": transferSelector,
		"40c10f19": mintSelector,
	}
	for want, got := range cases {
		if hex.EncodeToString(got) != want {
			t.Fatalf("selector %x, want %s", got, want)
		}
	}
}

func TestNewEVMValidatesConfig(t *testing.T) {
	var cfgErr *keys.ConfigurationError
	if _, err := NewEVM(newFakeBackend(), EVMConfig{TokenAddress: "nope"}); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError for token, got %v", err)
	}
	if _, err := NewEVM(newFakeBackend(), EVMConfig{TokenAddress: tokenAddr}); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError for faucet, got %v", err)
	}
}

func TestEVMBalances(t *testing.T) {
	gw, backend, faucet := newTestEVM(t)
	backend.tokenBal = big.NewInt(12_345_678)
	backend.balance, _ = new(big.Int).SetString("50000000000000000", 10)

	tok, err := gw.TokenBalance(context.Background(), faucet.Address())
	if err != nil {
		t.Fatalf("token balance: %v", err)
	}
	if tok.String() != "12.345678" {
		t.Fatalf("unexpected token balance %s", tok)
	}

	native, err := gw.NativeBalance(context.Background(), faucet.Address())
	if err != nil {
		t.Fatalf("native balance: %v", err)
	}
	if native.String() != "0.05" {
		t.Fatalf("unexpected native balance %s", native)
	}
}

func TestEVMBalanceRejectsMalformedOutput(t *testing.T) {
	gw, backend, faucet := newTestEVM(t)
	backend.callOut = []byte{0x01, 0x02}

	if _, err := gw.TokenBalance(context.Background(), faucet.Address()); err == nil {
		t.Fatalf("expected a decode error for a short return value")
	}
}

func TestEVMTransferSignsERC20Call(t *testing.T) {
	gw, backend, _ := newTestEVM(t)
	p, _ := keys.NewProvider("evm-test")
	sender, _ := p.Derive("2348030000000", "1234")
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	backend.tokenBal = big.NewInt(5_000_000)

	hash, err := gw.Transfer(context.Background(), sender, recipient.Hex(), decimal.RequireFromString("1.5"))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if len(backend.sent) != 1 {
		t.Fatalf("expected one transaction, got %d", len(backend.sent))
	}

	tx := backend.sent[0]
	if tx.Hash().Hex() != hash {
		t.Fatalf("returned hash %s does not match %s", hash, tx.Hash().Hex())
	}
	if *tx.To() != common.HexToAddress(tokenAddr) {
		t.Fatalf("transaction not addressed to token contract")
	}
	from, err := types.Sender(types.LatestSignerForChainID(backend.chainID), tx)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if from != sender.Account() {
		t.Fatalf("signed by %s, want %s", from.Hex(), sender.Address())
	}

	data := tx.Data()
	if !bytes.Equal(data[:4], transferSelector) {
		t.Fatalf("unexpected selector %x", data[:4])
	}
	if common.BytesToAddress(data[4:36]) != recipient {
		t.Fatalf("unexpected recipient word %x", data[4:36])
	}
	if new(big.Int).SetBytes(data[36:68]).Int64() != 1_500_000 {
		t.Fatalf("unexpected amount word %x", data[36:68])
	}
}

func TestEVMTransferChecksBalance(t *testing.T) {
	gw, backend, _ := newTestEVM(t)
	p, _ := keys.NewProvider("evm-test")
	sender, _ := p.Derive("2348030000000", "1234")
	backend.tokenBal = big.NewInt(100)

	_, err := gw.Transfer(context.Background(), sender, treasury, decimal.NewFromInt(1))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if len(backend.sent) != 0 {
		t.Fatalf("no transaction should be sent")
	}
}

func TestEVMMintAndFundGasUseFaucet(t *testing.T) {
	gw, backend, faucet := newTestEVM(t)
	ctx := context.Background()

	if _, err := gw.Mint(ctx, treasury, decimal.RequireFromString("0.415")); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := gw.FundGas(ctx, treasury, decimal.RequireFromString("0.05")); err != nil {
		t.Fatalf("fund gas: %v", err)
	}

	signer := types.LatestSignerForChainID(backend.chainID)
	for i, tx := range backend.sent {
		from, err := types.Sender(signer, tx)
		if err != nil || from != faucet.Account() {
			t.Fatalf("tx %d not signed by faucet: %v", i, err)
		}
		if tx.Nonce() != uint64(i) {
			t.Fatalf("tx %d nonce %d", i, tx.Nonce())
		}
	}

	mint := backend.sent[0]
	if !bytes.Equal(mint.Data()[:4], mintSelector) || new(big.Int).SetBytes(mint.Data()[36:68]).Int64() != 415_000 {
		t.Fatalf("unexpected mint calldata %x", mint.Data())
	}
	gas := backend.sent[1]
	if gas.Value().String() != "50000000000000000" || len(gas.Data()) != 0 {
		t.Fatalf("unexpected gas funding tx value=%s data=%x", gas.Value(), gas.Data())
	}
}

func TestEVMReceipt(t *testing.T) {
	gw, backend, _ := newTestEVM(t)
	ctx := context.Background()
	h := common.HexToHash("0x01")

	r, err := gw.Receipt(ctx, h.Hex())
	if err != nil || r != nil {
		t.Fatalf("expected pending receipt to be nil, got %+v err=%v", r, err)
	}

	backend.receipts[h] = &types.Receipt{TxHash: h, Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(42)}
	r, err = gw.Receipt(ctx, h.Hex())
	if err != nil || r == nil {
		t.Fatalf("expected receipt, got %+v err=%v", r, err)
	}
	if !r.Success || r.BlockNumber != 42 {
		t.Fatalf("unexpected receipt %+v", r)
	}
}

func TestEVMPing(t *testing.T) {
	gw, backend, _ := newTestEVM(t)
	if err := gw.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	backend.code = nil
	if err := gw.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping to fail without contract code")
	}
}
