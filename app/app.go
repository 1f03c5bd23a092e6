// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package app implements the order creation/acceptance coordinator (C7),
// the maintenance timer and rebroadcast loop (C8/§4.11), and the deposit
// watch loops (C9/§4.12). Grounded on server/swap/swap.go's Swapper shape
// (a struct of mutex-guarded state plus dependency interfaces injected at
// construction) generalized from a matched-order settlement engine to a
// two-party Maker/Taker coordinator.
package app

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/xbridge-swap/xbridge-core/coinlock"
	"github.com/xbridge-swap/xbridge-core/session"
	"github.com/xbridge-swap/xbridge-core/snode"
	"github.com/xbridge-swap/xbridge-core/swaporder"
	"github.com/xbridge-swap/xbridge-core/wallet"
)

// maxTickerLen is the maximum currency ticker length accepted by order
// creation, per §4.7 Create step 2.
const maxTickerLen = 8

// nMaxDatacarrierBytes is the maximum OP_RETURN payload size honored by
// the control chain's relay policy; the fee transaction's data push must
// leave 3 bytes of script-opcode overhead inside this budget (§4.7 Accept
// step 3).
const nMaxDatacarrierBytes = 80

var (
	ErrTickerTooLong         = errors.New("app: currency ticker exceeds 8 bytes")
	ErrDust                  = errors.New("app: amount is below the dust threshold")
	ErrInsufficientFunds     = errors.New("app: insufficient balance")
	ErrNoServiceNode         = errors.New("app: no service node available")
	ErrInvalidSignature      = errors.New("app: ownership signature is malformed")
	ErrOrderNotFound         = swaporder.ErrNotFound
	ErrAlreadyAccepting      = errors.New("app: order is already at or past trAccepting")
	ErrInvalidOnchainHistory = errors.New("app: order summary does not fit the OP_RETURN budget")
)

// Config bundles the dependencies an App needs. Wallets is keyed by
// currency ticker; ControlChain is the ticker of the chain blockHash/id
// derivation reads from.
type Config struct {
	Directory    *snode.Directory
	Locks        *coinlock.Registry
	Orders       *swaporder.Table
	Wallets      map[string]wallet.Connector
	ControlChain string

	ProtocolVersion uint32
	IsServiceNode   bool

	// Send dispatches a signed packet to the chosen service node. Supplied
	// by the caller so App stays agnostic of the concrete transport
	// (session.Link, an in-memory stub, etc.).
	Send func(ctx context.Context, peerPubKey []byte, pkt *session.Packet) error

	// MKey is used to sign every outbound packet this node originates;
	// it's the process's long-lived messaging key, distinct from an
	// order's ephemeral m/x keypair.
	MKey []byte

	// OnWalletReachability, if set, is notified by the timer loop's
	// wallet-refresh tick with each wallet's current reachability.
	OnWalletReachability func(ticker string, reachable bool)

	// PingService, if set, is invoked by the timer loop to announce this
	// node's continued availability; nil for a node that isn't an active
	// service node.
	PingService func(ctx context.Context)
}

// App is the order creation/acceptance coordinator.
type App struct {
	cfg Config
}

// New builds an App from cfg.
func New(cfg Config) *App {
	return &App{cfg: cfg}
}

func (a *App) wallet(ticker string) (wallet.Connector, error) {
	w, ok := a.cfg.Wallets[ticker]
	if !ok {
		return nil, fmt.Errorf("app: no wallet configured for %s", ticker)
	}
	return w, nil
}

// CreateOrder runs the Maker's order-creation sequence (§4.7 Create). On
// success the order is registered in cfg.Orders and the xbcTransaction
// packet has been dispatched to the chosen service node.
func (a *App) CreateOrder(ctx context.Context, fromCurrency, fromAddr string, fromAmount int64, toCurrency, toAddr string, toAmount int64) (*swaporder.Order, error) {
	if len(fromCurrency) > maxTickerLen || len(toCurrency) > maxTickerLen {
		return nil, ErrTickerTooLong
	}

	fromWallet, err := a.wallet(fromCurrency)
	if err != nil {
		return nil, err
	}
	toWallet, err := a.wallet(toCurrency)
	if err != nil {
		return nil, err
	}
	if fromWallet.IsDustAmount(fromAmount) || toWallet.IsDustAmount(toAmount) {
		return nil, ErrDust
	}

	o := swaporder.New(swaporder.RoleMaker)
	o.FromCurrency, o.ToCurrency = fromCurrency, toCurrency
	o.FromAmount, o.ToAmount = fromAmount, toAmount
	o.FromAddr, o.ToAddr = fromAddr, toAddr

	node, ok := a.cfg.Directory.SelectRandom(fromCurrency, toCurrency, a.cfg.ProtocolVersion, excludeSetFor(o))
	if !ok {
		return nil, ErrNoServiceNode
	}
	o.SPubKey = node.PubKey[:]
	copy(o.HubAddress[:], node.CollateralAddr[:])

	sel, err := a.selectAndLockCoins(ctx, fromWallet, fromCurrency, fromAmount, fromAddr)
	if err != nil {
		return nil, err
	}
	o.UsedCoins = sel.UTXOs

	controlWallet, err := a.wallet(a.cfg.ControlChain)
	if err != nil {
		a.cfg.Locks.UnlockCoins(fromCurrency, o.UsedCoins)
		return nil, err
	}
	height, err := controlWallet.GetBlockCount(ctx)
	if err != nil || height == 0 {
		a.cfg.Locks.UnlockCoins(fromCurrency, o.UsedCoins)
		return nil, fmt.Errorf("app: reading control chain height: %w", err)
	}
	blockHash, err := controlWallet.GetBlockHash(ctx, height-1)
	if err != nil {
		a.cfg.Locks.UnlockCoins(fromCurrency, o.UsedCoins)
		return nil, fmt.Errorf("app: reading control chain block hash: %w", err)
	}
	o.BlockHash = blockHash
	o.Created = time.Now()
	o.TxTime = o.Created

	mPriv, mPub, err := toWallet.NewKeyPair()
	if err != nil {
		a.cfg.Locks.UnlockCoins(fromCurrency, o.UsedCoins)
		return nil, err
	}
	xPriv, xPub, err := toWallet.NewKeyPair()
	if err != nil {
		a.cfg.Locks.UnlockCoins(fromCurrency, o.UsedCoins)
		return nil, err
	}
	o.MPrivKey, o.MPubKey = mPriv, mPub
	o.XPrivKey, o.XPubKey = xPriv, xPub

	var firstSig []byte
	if len(o.UsedCoins) > 0 {
		firstSig = o.UsedCoins[0].Signature
	}
	o.ID = swaporder.CalcID(swaporder.IDInput{
		FromAddr:            fromAddr,
		ToAddr:              toAddr,
		FromCurrency:        fromCurrency,
		ToCurrency:          toCurrency,
		FromAmount:          fromAmount,
		ToAmount:            toAmount,
		CreatedUnixMicro:    o.Created.UnixMicro(),
		BlockHash:           blockHash,
		FirstInputSignature: firstSig,
	})

	payload := encodeTransactionPayload(o)
	if err := a.dispatch(ctx, o, session.CmdTransaction, payload, mPriv); err != nil {
		a.cfg.Locks.UnlockCoins(fromCurrency, o.UsedCoins)
		return nil, err
	}

	a.cfg.Orders.Put(o)
	return o, nil
}

// AcceptOrder runs the Taker's order-acceptance sequence (§4.7 Accept)
// against an order already known to this process (typically relayed by
// the service node as an xbcTransaction packet and recorded via
// cfg.Orders.Put by the caller before AcceptOrder is invoked).
func (a *App) AcceptOrder(ctx context.Context, id swaporder.ID) error {
	o, ok := a.cfg.Orders.Get(id)
	if !ok {
		return ErrOrderNotFound
	}
	if !o.TryLock() {
		return errors.New("app: order is busy")
	}
	defer o.Unlock()

	priorState := o.StateLocked()
	if priorState >= swaporder.StateAccepting {
		return ErrAlreadyAccepting
	}
	if err := o.SetStateLocked(swaporder.StateAccepting); err != nil {
		return err
	}
	revert := func() { o.SetStateLocked(priorState) }

	fromWallet, err := a.wallet(o.FromCurrency)
	if err != nil {
		revert()
		return err
	}
	toWallet, err := a.wallet(o.ToCurrency)
	if err != nil {
		revert()
		return err
	}
	if fromWallet.IsDustAmount(o.FromAmount) || toWallet.IsDustAmount(o.ToAmount) {
		revert()
		return ErrDust
	}

	feeWallet, err := a.wallet(a.cfg.ControlChain)
	if err != nil {
		revert()
		return err
	}
	serviceNodeFee := feeWallet.ServiceNodeFee()

	balance, err := a.availableBalance(ctx, feeWallet, a.cfg.ControlChain)
	if err != nil {
		revert()
		return err
	}
	if balance < serviceNodeFee {
		revert()
		return ErrInsufficientFunds
	}

	opData, err := buildFeePayload(o)
	if err != nil {
		revert()
		return err
	}

	feeCandidates, err := feeWallet.GetUnspent(ctx, a.cfg.Locks.AllLocked(a.cfg.ControlChain))
	if err != nil {
		revert()
		return err
	}
	feeSel, err := wallet.Select(feeCandidates, serviceNodeFee, feeWallet.Config().COIN, "", feeWallet.MinTxFee1, feeWallet.MinTxFee2)
	if err != nil {
		revert()
		return err
	}
	if !a.cfg.Locks.LockFeeUtxos(feeSel.UTXOs) {
		revert()
		return errors.New("app: fee UTXOs already reserved")
	}
	o.FeeUtxos = feeSel.UTXOs

	var collateral [20]byte
	copy(collateral[:], o.HubAddress[:])
	feeTxID, _, err := feeWallet.CreateFeeTransaction(ctx, wallet.FeeParams{
		Inputs:         feeSel.UTXOs,
		FeeAmount:      serviceNodeFee,
		CollateralAddr: collateral,
		OPReturnData:   opData,
	})
	if err != nil {
		a.cfg.Locks.UnlockFeeUtxos(o.FeeUtxos)
		revert()
		return err
	}
	_ = feeTxID

	sel, err := a.selectAndLockCoins(ctx, fromWallet, o.FromCurrency, o.FromAmount, o.FromAddr)
	if err != nil {
		a.cfg.Locks.UnlockFeeUtxos(o.FeeUtxos)
		revert()
		return err
	}
	o.UsedCoins = sel.UTXOs

	mPriv, mPub, err := toWallet.NewKeyPair()
	if err != nil {
		a.cfg.Locks.UnlockFeeUtxos(o.FeeUtxos)
		a.cfg.Locks.UnlockCoins(o.FromCurrency, o.UsedCoins)
		revert()
		return err
	}
	o.MPrivKey, o.MPubKey = mPriv, mPub

	payload := encodeTransactionPayload(o)
	if err := a.dispatch(ctx, o, session.CmdTransactionAccepting, payload, mPriv); err != nil {
		a.cfg.Locks.UnlockFeeUtxos(o.FeeUtxos)
		a.cfg.Locks.UnlockCoins(o.FromCurrency, o.UsedCoins)
		revert()
		return err
	}
	return nil
}

func (a *App) availableBalance(ctx context.Context, w wallet.Connector, ticker string) (int64, error) {
	unspent, err := w.GetUnspent(ctx, a.cfg.Locks.AllLocked(ticker))
	if err != nil {
		return 0, err
	}
	var total int64
	for _, u := range unspent {
		total += int64(u.Amount * float64(w.Config().COIN))
	}
	return total, nil
}

// selectAndLockCoins runs the §4.10 selection algorithm, signs ownership of
// every selected UTXO (§4.7 Create step 3), and atomically locks the
// selection. Locking happens last so a failed signature never leaves a
// dangling reservation.
func (a *App) selectAndLockCoins(ctx context.Context, w wallet.Connector, ticker string, amount int64, addr string) (*wallet.Selection, error) {
	candidates, err := w.GetUnspent(ctx, a.cfg.Locks.AllLocked(ticker))
	if err != nil {
		return nil, err
	}
	sel, err := wallet.Select(candidates, amount, w.Config().COIN, addr, w.MinTxFee1, w.MinTxFee2)
	if err != nil {
		return nil, err
	}
	for _, u := range sel.UTXOs {
		sigB64, err := w.SignMessage(ctx, u.Address, []byte(u.String()))
		if err != nil {
			return nil, fmt.Errorf("app: signing utxo ownership: %w", err)
		}
		sig, err := base64.StdEncoding.DecodeString(sigB64)
		if err != nil {
			return nil, ErrInvalidSignature
		}
		if len(sig) != 65 {
			return nil, ErrInvalidSignature
		}
		u.Signature = sig
		u.RawAddr, err = w.ToXAddr(u.Address)
		if err != nil {
			return nil, err
		}
	}
	if !a.cfg.Locks.LockCoins(ticker, sel.UTXOs) {
		return nil, errors.New("app: selected utxos already reserved")
	}
	return sel, nil
}

// excludeSetFor converts an order's ExcludedNodes (hex-encoded compressed
// pubkeys, the same encoding an order ID uses for itself) into the
// fixed-width key set Directory.SelectRandom expects.
func excludeSetFor(o *swaporder.Order) map[[snode.PubKeySize]byte]struct{} {
	out := make(map[[snode.PubKeySize]byte]struct{}, len(o.ExcludedNodes))
	for hexKey := range o.ExcludedNodes {
		var key [snode.PubKeySize]byte
		b, err := hex.DecodeString(hexKey)
		if err != nil || len(b) != snode.PubKeySize {
			continue
		}
		copy(key[:], b)
		out[key] = struct{}{}
	}
	return out
}

// dispatch signs payload with priv under command and sends it to the
// order's chosen service node.
func (a *App) dispatch(ctx context.Context, o *swaporder.Order, command session.Command, payload []byte, priv []byte) error {
	if a.cfg.Send == nil {
		return nil
	}
	key, _ := btcec.PrivKeyFromBytes(priv)
	pkt, err := session.Sign(key, command, uint64(time.Now().UnixMicro()), payload)
	if err != nil {
		return err
	}
	return a.cfg.Send(ctx, o.SPubKey, pkt)
}

// buildFeePayload renders the OP_RETURN order summary, truncating the
// order ID when the full summary would not otherwise fit (§4.7 Accept
// step 3).
func buildFeePayload(o *swaporder.Order) ([]byte, error) {
	maxBytes := nMaxDatacarrierBytes - 3

	type summary []interface{}
	info := summary{o.FromCurrency, o.FromAmount, o.ToCurrency, o.ToAmount}
	rest, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}

	orderID := o.ID.String()
	// The ID element adds its two quotes and a comma to the JSON array.
	if len(rest)+len(orderID)+3 > maxBytes {
		leftOver := maxBytes - len(rest) - 3
		if leftOver < 0 {
			leftOver = 0
		}
		if leftOver < len(orderID) {
			orderID = orderID[:leftOver]
		}
	}

	full := summary{orderID, o.FromCurrency, o.FromAmount, o.ToCurrency, o.ToAmount}
	out, err := json.Marshal(full)
	if err != nil {
		return nil, err
	}
	if len(out) > maxBytes {
		return nil, ErrInvalidOnchainHistory
	}
	return out, nil
}

// encodeTransactionPayload renders the xbcTransaction/xbcTransactionAccepting
// payload: id | from | fromCurrency | fromAmount | to | toCurrency |
// toAmount | createdµs | blockHash | nInputs | {txid|vout|rawAddr|sig}*
// (§4.7 Create step 6).
func encodeTransactionPayload(o *swaporder.Order) []byte {
	type utxoEntry struct {
		TxID    string `json:"txid"`
		Vout    uint32 `json:"vout"`
		RawAddr []byte `json:"rawAddr"`
		Sig     []byte `json:"sig"`
	}
	type payload struct {
		ID           string      `json:"id"`
		From         string      `json:"from"`
		FromCurrency string      `json:"fromCurrency"`
		FromAmount   int64       `json:"fromAmount"`
		To           string      `json:"to"`
		ToCurrency   string      `json:"toCurrency"`
		ToAmount     int64       `json:"toAmount"`
		CreatedMicro int64       `json:"createdMicro"`
		BlockHash    string      `json:"blockHash"`
		Inputs       []utxoEntry `json:"inputs"`
	}
	entries := make([]utxoEntry, len(o.UsedCoins))
	for i, u := range o.UsedCoins {
		entries[i] = utxoEntry{TxID: u.TxID, Vout: u.Vout, RawAddr: u.RawAddr[:], Sig: u.Signature}
	}
	p := payload{
		ID:           o.ID.String(),
		From:         o.FromAddr,
		FromCurrency: o.FromCurrency,
		FromAmount:   o.FromAmount,
		To:           o.ToAddr,
		ToCurrency:   o.ToCurrency,
		ToAmount:     o.ToAmount,
		CreatedMicro: o.Created.UnixMicro(),
		BlockHash:    o.BlockHash,
		Inputs:       entries,
	}
	b, _ := json.Marshal(p)
	return b
}

// randomDelay jitters rebroadcast scheduling; grounded on
// server/asset/btc/rpcclient.go's use of math/rand for the same purpose
// elsewhere in the teacher.
func randomDelay(max time.Duration) time.Duration {
	return time.Duration(rand.Int63n(int64(max)))
}
