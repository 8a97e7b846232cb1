package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/GoAutonity/dripgate/internal/config"
	"github.com/GoAutonity/dripgate/internal/pkg/logger"
	"github.com/GoAutonity/dripgate/internal/pkg/metrics"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

// Minimal ABI fragments for the two protocol contracts. Only the methods
// the faucet calls are declared; the deployed contracts are supersets.
const autonityABIJSON = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const stabilizationABIJSON = `[
	{"name":"cdps","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"timestamp","type":"uint256"},{"name":"collateral","type":"uint256"},{"name":"principal","type":"uint256"},{"name":"interest","type":"uint256"}]},
	{"name":"debtAmount","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"collateralPrice","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"liquidationRatio","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"minCollateralizationRatio","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"maxBorrow","type":"function","stateMutability":"view","inputs":[{"name":"collateral","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"minimumCollateral","type":"function","stateMutability":"view","inputs":[{"name":"principal","type":"uint256"},{"name":"price","type":"uint256"},{"name":"mcr","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"isLiquidatable","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"deposit","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"withdraw","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"borrow","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"repay","type":"function","stateMutability":"payable","inputs":[],"outputs":[]}
]`

// Gas limits per operation, matching what the contracts actually need
// with headroom. Plain value transfers use the protocol minimum.
const (
	gasTransferNative = 21000
	gasTransferToken  = 100000
	gasApprove        = 100000
	gasDeposit        = 300000
	gasWithdraw       = 200000
	gasBorrow         = 300000
	gasRepay          = 200000
)

// Client implements Ledger against an Autonity-style RPC endpoint.
type Client struct {
	ec                *ethclient.Client
	wallet            *Wallet
	chainID           *big.Int
	autonityAddr      common.Address
	stabilizationAddr common.Address
	autonityABI       abi.ABI
	stabilizationABI  abi.ABI
	receiptTimeout    time.Duration

	// Serializes nonce fetch + submit so two in-process sends cannot race
	// to the same nonce.
	sendMu sync.Mutex
}

func NewClient(ctx context.Context, cfg config.ChainConfig, wallet *Wallet) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	chainID, err := ec.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chain id: %w", err)
	}

	autonityABI, err := abi.JSON(strings.NewReader(autonityABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse autonity abi: %w", err)
	}
	stabilizationABI, err := abi.JSON(strings.NewReader(stabilizationABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse stabilization abi: %w", err)
	}

	timeout := time.Duration(cfg.ReceiptTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		ec:                ec,
		wallet:            wallet,
		chainID:           chainID,
		autonityAddr:      common.HexToAddress(cfg.AutonityAddr),
		stabilizationAddr: common.HexToAddress(cfg.StabilizationAddr),
		autonityABI:       autonityABI,
		stabilizationABI:  stabilizationABI,
		receiptTimeout:    timeout,
	}, nil
}

func (c *Client) WalletAddress() common.Address {
	return c.wallet.Address()
}

func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Connected reports whether the RPC endpoint answers. Used by the
// readiness probe.
func (c *Client) Connected(ctx context.Context) bool {
	_, err := c.ec.BlockNumber(ctx)
	return err == nil
}

func (c *Client) NativeBalance(ctx context.Context, addr common.Address) (decimal.Decimal, error) {
	wei, err := c.ec.BalanceAt(ctx, addr, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("native balance: %w", err)
	}
	return FromWei(wei), nil
}

func (c *Client) TokenBalance(ctx context.Context, addr common.Address) (decimal.Decimal, error) {
	out, err := c.call(ctx, c.autonityAddr, c.autonityABI, "balanceOf", addr)
	if err != nil {
		return decimal.Zero, err
	}
	return FromWei(out[0].(*big.Int)), nil
}

func (c *Client) CDP(ctx context.Context, addr common.Address) (Position, error) {
	out, err := c.call(ctx, c.stabilizationAddr, c.stabilizationABI, "cdps", addr)
	if err != nil {
		return Position{}, err
	}
	return Position{
		Collateral: out[1].(*big.Int),
		Principal:  out[2].(*big.Int),
	}, nil
}

func (c *Client) DebtAmount(ctx context.Context, addr common.Address) (*big.Int, error) {
	out, err := c.call(ctx, c.stabilizationAddr, c.stabilizationABI, "debtAmount", addr)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (c *Client) CollateralPrice(ctx context.Context) (*big.Int, error) {
	out, err := c.call(ctx, c.stabilizationAddr, c.stabilizationABI, "collateralPrice")
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (c *Client) LiquidationRatio(ctx context.Context) (*big.Int, error) {
	out, err := c.call(ctx, c.stabilizationAddr, c.stabilizationABI, "liquidationRatio")
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (c *Client) MinCollateralizationRatio(ctx context.Context) (*big.Int, error) {
	out, err := c.call(ctx, c.stabilizationAddr, c.stabilizationABI, "minCollateralizationRatio")
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (c *Client) MaxBorrow(ctx context.Context, collateral *big.Int) (*big.Int, error) {
	out, err := c.call(ctx, c.stabilizationAddr, c.stabilizationABI, "maxBorrow", collateral)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (c *Client) MinimumCollateral(ctx context.Context, principal, price, mcr *big.Int) (*big.Int, error) {
	out, err := c.call(ctx, c.stabilizationAddr, c.stabilizationABI, "minimumCollateral", principal, price, mcr)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (c *Client) IsLiquidatable(ctx context.Context, addr common.Address) (bool, error) {
	out, err := c.call(ctx, c.stabilizationAddr, c.stabilizationABI, "isLiquidatable", addr)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

func (c *Client) TransferNative(ctx context.Context, to common.Address, amountWei *big.Int) (string, error) {
	return c.send(ctx, "transfer_native", &to, amountWei, gasTransferNative, nil)
}

func (c *Client) TransferToken(ctx context.Context, to common.Address, amountWei *big.Int) (string, error) {
	data, err := c.autonityABI.Pack("transfer", to, amountWei)
	if err != nil {
		return "", fmt.Errorf("pack transfer: %w", err)
	}
	return c.send(ctx, "transfer_token", &c.autonityAddr, nil, gasTransferToken, data)
}

func (c *Client) ApproveStabilization(ctx context.Context, amountWei *big.Int) (string, error) {
	data, err := c.autonityABI.Pack("approve", c.stabilizationAddr, amountWei)
	if err != nil {
		return "", fmt.Errorf("pack approve: %w", err)
	}
	return c.send(ctx, "approve", &c.autonityAddr, nil, gasApprove, data)
}

func (c *Client) Deposit(ctx context.Context, amountWei *big.Int) (string, error) {
	data, err := c.stabilizationABI.Pack("deposit", amountWei)
	if err != nil {
		return "", fmt.Errorf("pack deposit: %w", err)
	}
	return c.send(ctx, "deposit", &c.stabilizationAddr, nil, gasDeposit, data)
}

func (c *Client) Withdraw(ctx context.Context, amountWei *big.Int) (string, error) {
	data, err := c.stabilizationABI.Pack("withdraw", amountWei)
	if err != nil {
		return "", fmt.Errorf("pack withdraw: %w", err)
	}
	return c.send(ctx, "withdraw", &c.stabilizationAddr, nil, gasWithdraw, data)
}

func (c *Client) Borrow(ctx context.Context, amountWei *big.Int) (string, error) {
	data, err := c.stabilizationABI.Pack("borrow", amountWei)
	if err != nil {
		return "", fmt.Errorf("pack borrow: %w", err)
	}
	return c.send(ctx, "borrow", &c.stabilizationAddr, nil, gasBorrow, data)
}

// Repay sends the repaid amount as transaction value; the contract's
// repay method is payable and takes no arguments.
func (c *Client) Repay(ctx context.Context, valueWei *big.Int) (string, error) {
	data, err := c.stabilizationABI.Pack("repay")
	if err != nil {
		return "", fmt.Errorf("pack repay: %w", err)
	}
	return c.send(ctx, "repay", &c.stabilizationAddr, valueWei, gasRepay, data)
}

// WaitForReceipt blocks until the transaction is mined or the configured
// receipt timeout elapses. A timeout surfaces as an error; the caller
// decides whether to retry.
func (c *Client) WaitForReceipt(ctx context.Context, txHash string) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	hash := common.HexToHash(txHash)
	start := time.Now()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		receipt, err := c.ec.TransactionReceipt(waitCtx, hash)
		if err == nil {
			metrics.TransactionDuration.WithLabelValues("receipt").Observe(time.Since(start).Seconds())
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("transaction %s reverted", txHash)
			}
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("wait for receipt %s: %w", txHash, err)
		}

		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("wait for receipt %s: %w", txHash, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := c.ec.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	out, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, operation string, to *common.Address, value *big.Int, gasLimit uint64, data []byte) (string, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	from := c.wallet.Address()
	nonce, err := c.ec.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := c.ec.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch gas price: %w", err)
	}
	if value == nil {
		value = big.NewInt(0)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.wallet.Key())
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", operation, err)
	}
	start := time.Now()
	if err := c.ec.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send %s: %w", operation, err)
	}
	metrics.TransactionDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	txHash := signed.Hash().Hex()
	logger.Info("Transaction submitted",
		"operation", operation,
		"tx_hash", txHash,
		"nonce", nonce,
	)
	return txHash, nil
}
