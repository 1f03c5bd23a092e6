// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package wallet defines the per-chain capability surface the swap
// coordinator core depends on (C1), plus the UTXO selection algorithm
// (§4.10) shared by every concrete Connector. Concrete connectors live in
// wallet/btc and wallet/bch.
package wallet

import (
	"context"

	"github.com/xbridge-swap/xbridge-core/coin"
)

// Connector represents one connected chain. The core never talks to a
// wallet RPC directly; every chain interaction goes through this
// interface, which is satisfied by wallet/btc.Wallet and wallet/bch.Wallet.
type Connector interface {
	// Init performs a reachability check, returning false if the backing
	// node cannot currently be reached.
	Init(ctx context.Context) bool

	// GetUnspent lists spendable outputs, excluding any already present in
	// exclude.
	GetUnspent(ctx context.Context, exclude map[coin.ID]struct{}) ([]*coin.Unspent, error)

	GetBlockCount(ctx context.Context) (uint32, error)
	GetBlockHash(ctx context.Context, height uint32) (string, error)
	GetTransactionsInBlock(ctx context.Context, blockHash string) ([]string, error)
	GetRawMempool(ctx context.Context) ([]string, error)

	// IsUTXOSpentInTx reports whether (outpointTxID, outpointVout) is
	// consumed as an input of txID. ok is false if txID could not be
	// located at all (as distinct from located-but-not-spending).
	IsUTXOSpentInTx(ctx context.Context, txID, outpointTxID string, outpointVout uint32) (isSpent, ok bool)

	ToXAddr(addr string) ([20]byte, error)
	FromXAddr(raw [20]byte) (string, error)
	IsValidAddress(addr string) bool

	NewKeyPair() (priv, pub []byte, err error)
	GetKeyID(pub []byte) [20]byte
	Sign(priv, hash []byte) ([]byte, error)

	// SignMessage proves ownership of addr by having the wallet sign msg
	// with addr's own key (the standard signmessage RPC), since UTXO
	// ownership signatures are produced by wallet-held keys, not the
	// ephemeral m/x keypair an order generates for its HTLC output.
	SignMessage(ctx context.Context, addr string, msg []byte) (string, error)

	MinTxFee1(nInputs, nOutputs int) int64
	MinTxFee2(nInputs, nOutputs int) int64
	IsDustAmount(amount int64) bool
	ServiceNodeFee() int64

	// CreateRefundTransaction builds and signs the timelocked refund spend
	// of an HTLC output and checks that it decodes (§4.8). It does not
	// broadcast the transaction.
	CreateRefundTransaction(ctx context.Context, p RefundParams) (txID string, rawTx []byte, err error)
	// CreatePaymentTransaction builds and signs the preimage-revealing
	// redeem spend of an HTLC output and checks that it decodes (§4.8). It
	// does not broadcast the transaction.
	CreatePaymentTransaction(ctx context.Context, p PaymentParams) (txID string, rawTx []byte, err error)

	// CreateFeeTransaction builds and wallet-signs the service-node fee
	// payment carrying an OP_RETURN data output (§4.7 Accept step 3).
	CreateFeeTransaction(ctx context.Context, p FeeParams) (txID string, rawTx []byte, err error)

	Config() ChainConfig
}

// ChainConfig carries the per-chain constants a Connector exposes, loaded
// from the [<TICKER>] configuration section (§6).
type ChainConfig struct {
	Ticker                string
	COIN                  int64
	TxVersion             int32
	BlockTime             int64
	RequiredConfirmations uint32
	TxWithTimeField       bool
	CreateTxMethod        string // one of BTC, SYS, BCH, DGB
}

// RefundParams carries the inputs to a refund-path spend.
type RefundParams struct {
	PrevTxID, PrevTxHash string
	PrevVout             uint32
	Amount               int64
	LockTime             int64
	RedeemScript         []byte
	MPrivKey, MPubKey    []byte
	ToAddr               [20]byte
}

// PaymentParams carries the inputs to a redeem-path spend.
type PaymentParams struct {
	PrevTxID, PrevTxHash string
	PrevVout             uint32
	Amount               int64
	RedeemScript         []byte
	MPrivKey, MPubKey    []byte
	XPubKey              []byte
	ToAddr               [20]byte
}

// FeeParams carries the inputs to the service-node fee transaction: a
// payment to the node's collateral address plus an OP_RETURN output
// carrying the order summary, spending wallet-owned UTXOs the wallet
// itself holds keys for (unlike RefundParams/PaymentParams, which spend an
// HTLC output under ephemeral keys the order owns).
type FeeParams struct {
	Inputs         []*coin.Unspent
	FeeAmount      int64
	CollateralAddr [20]byte
	OPReturnData   []byte
}
