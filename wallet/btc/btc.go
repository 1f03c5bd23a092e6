// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package btc implements wallet.Connector for Bitcoin-derived chains that
// use plain (pre-fork) ECDSA signature hashing. Grounded on
// server/asset/btc/rpcclient.go's RawRequester abstraction and
// client/asset/btc's address/key handling, generalized to the
// WalletConnector capability surface.
package btc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/xbridge-swap/xbridge-core/coin"
	"github.com/xbridge-swap/xbridge-core/script"
	"github.com/xbridge-swap/xbridge-core/wallet"
)

// RawRequester is the minimal JSON-RPC transport a Wallet needs. A caller
// wires this to a real bitcoind-style RPC client (e.g.
// github.com/btcsuite/btcd/rpcclient); tests substitute a stub.
type RawRequester interface {
	RawRequest(ctx context.Context, method string, params []json.RawMessage) (json.RawMessage, error)
}

// Params carries the address version bytes and other chain constants
// needed to interpret and build addresses for a BTC-derived chain, mirrored
// from the [<TICKER>] configuration section rather than a registered
// chaincfg.Params (most configured chains here are clones bitcoind never
// shipped a chaincfg entry for).
type Params struct {
	PubKeyHashAddrID byte
	ScriptHashAddrID byte
	WIFByte          byte
}

// Wallet is the BTC-style Connector.
type Wallet struct {
	cfg    wallet.ChainConfig
	params Params
	rr     RawRequester
}

// New builds a Wallet for the given chain configuration.
func New(cfg wallet.ChainConfig, params Params, rr RawRequester) *Wallet {
	return &Wallet{cfg: cfg, params: params, rr: rr}
}

func (w *Wallet) Config() wallet.ChainConfig { return w.cfg }

func (w *Wallet) call(ctx context.Context, method string, args []interface{}, out interface{}) error {
	raw := make([]json.RawMessage, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return err
		}
		raw[i] = b
	}
	resp, err := w.rr.RawRequest(ctx, method, raw)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resp, out)
}

func (w *Wallet) Init(ctx context.Context) bool {
	var count uint32
	return w.call(ctx, "getblockcount", nil, &count) == nil
}

type unspentResult struct {
	TxID    string  `json:"txid"`
	Vout    uint32  `json:"vout"`
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
}

func (w *Wallet) GetUnspent(ctx context.Context, exclude map[coin.ID]struct{}) ([]*coin.Unspent, error) {
	var results []unspentResult
	if err := w.call(ctx, "listunspent", []interface{}{0}, &results); err != nil {
		return nil, err
	}
	out := make([]*coin.Unspent, 0, len(results))
	for _, r := range results {
		id := coin.NewID(r.TxID, r.Vout)
		if _, skip := exclude[id]; skip {
			continue
		}
		out = append(out, &coin.Unspent{TxID: r.TxID, Vout: r.Vout, Amount: r.Amount, Address: r.Address})
	}
	return out, nil
}

func (w *Wallet) GetBlockCount(ctx context.Context) (uint32, error) {
	var count uint32
	return count, w.call(ctx, "getblockcount", nil, &count)
}

func (w *Wallet) GetBlockHash(ctx context.Context, height uint32) (string, error) {
	var hash string
	return hash, w.call(ctx, "getblockhash", []interface{}{height}, &hash)
}

type blockResult struct {
	Tx []string `json:"tx"`
}

func (w *Wallet) GetTransactionsInBlock(ctx context.Context, blockHash string) ([]string, error) {
	var block blockResult
	if err := w.call(ctx, "getblock", []interface{}{blockHash}, &block); err != nil {
		return nil, err
	}
	return block.Tx, nil
}

func (w *Wallet) GetRawMempool(ctx context.Context) ([]string, error) {
	var txids []string
	return txids, w.call(ctx, "getrawmempool", nil, &txids)
}

type verboseTx struct {
	Vin []struct {
		TxID string `json:"txid"`
		Vout uint32 `json:"vout"`
	} `json:"vin"`
}

func (w *Wallet) IsUTXOSpentInTx(ctx context.Context, txID, outpointTxID string, outpointVout uint32) (bool, bool) {
	var tx verboseTx
	if err := w.call(ctx, "getrawtransaction", []interface{}{txID, true}, &tx); err != nil {
		return false, false
	}
	for _, in := range tx.Vin {
		if in.TxID == outpointTxID && in.Vout == outpointVout {
			return true, true
		}
	}
	return false, true
}

func (w *Wallet) ToXAddr(addr string) ([20]byte, error) {
	var out [20]byte
	decoded, version, err := base58.CheckDecode(addr)
	if err != nil {
		return out, err
	}
	if version != w.params.PubKeyHashAddrID && version != w.params.ScriptHashAddrID {
		return out, errors.New("btc: address version mismatch")
	}
	if len(decoded) != 20 {
		return out, errors.New("btc: decoded address is not 20 bytes")
	}
	copy(out[:], decoded)
	return out, nil
}

func (w *Wallet) FromXAddr(raw [20]byte) (string, error) {
	return base58.CheckEncode(raw[:], w.params.PubKeyHashAddrID), nil
}

func (w *Wallet) IsValidAddress(addr string) bool {
	_, _, err := base58.CheckDecode(addr)
	return err == nil
}

func (w *Wallet) NewKeyPair() ([]byte, []byte, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, nil, err
	}
	return priv.Serialize(), priv.PubKey().SerializeCompressed(), nil
}

func (w *Wallet) GetKeyID(pub []byte) [20]byte {
	var out [20]byte
	copy(out[:], script.Hash160(pub))
	return out
}

func (w *Wallet) Sign(priv, hash []byte) ([]byte, error) {
	if len(hash) != chainhash.HashSize {
		return nil, errors.New("btc: hash must be 32 bytes")
	}
	privKey, _ := btcec.PrivKeyFromBytes(priv)
	var h chainhash.Hash
	copy(h[:], hash)
	sig := ecdsaSign(privKey, h)
	return sig, nil
}

// SignMessage proves ownership of addr over msg via the wallet's own
// signmessage RPC, since a UTXO's spending key lives in the wallet, not in
// this process (unlike the ephemeral m/x keys an order generates for its
// HTLC output). The result is the wallet's standard base64-encoded 65-byte
// recoverable signature, matching coin.Unspent.Signature's format.
func (w *Wallet) SignMessage(ctx context.Context, addr string, msg []byte) (string, error) {
	var sig string
	if err := w.call(ctx, "signmessage", []interface{}{addr, string(msg)}, &sig); err != nil {
		return "", err
	}
	return sig, nil
}

func (w *Wallet) MinTxFee1(nInputs, nOutputs int) int64 {
	return int64(nInputs*180+nOutputs*34+10) * 2
}

func (w *Wallet) MinTxFee2(nInputs, nOutputs int) int64 {
	return int64(nInputs*180 + nOutputs*34 + 10)
}

func (w *Wallet) IsDustAmount(amount int64) bool {
	return amount < 546
}

func (w *Wallet) ServiceNodeFee() int64 {
	return 10000
}

func (w *Wallet) CreateRefundTransaction(ctx context.Context, p wallet.RefundParams) (string, []byte, error) {
	tx, err := buildSpendTx(p.PrevTxHash, p.PrevVout, p.Amount, p.LockTime, p.ToAddr, w.params)
	if err != nil {
		return "", nil, err
	}
	sequence := script.RefundSequence(p.LockTime)
	tx.TxIn[0].Sequence = sequence

	privKey, _ := btcec.PrivKeyFromBytes(p.MPrivKey)
	sigHash, err := txscript.CalcSignatureHash(p.RedeemScript, txscript.SigHashAll, tx, 0)
	if err != nil {
		return "", nil, err
	}
	var h chainhash.Hash
	copy(h[:], sigHash)
	sig := ecdsaSign(privKey, h)
	sig = append(sig, byte(txscript.SigHashAll))

	sigScript, err := script.RefundSigScript(sig, p.MPubKey, p.RedeemScript)
	if err != nil {
		return "", nil, err
	}
	tx.TxIn[0].SignatureScript = sigScript

	return finalizeTx(tx)
}

func (w *Wallet) CreatePaymentTransaction(ctx context.Context, p wallet.PaymentParams) (string, []byte, error) {
	tx, err := buildSpendTx(p.PrevTxHash, p.PrevVout, p.Amount, 0, p.ToAddr, w.params)
	if err != nil {
		return "", nil, err
	}

	privKey, _ := btcec.PrivKeyFromBytes(p.MPrivKey)
	sigHash, err := txscript.CalcSignatureHash(p.RedeemScript, txscript.SigHashAll, tx, 0)
	if err != nil {
		return "", nil, err
	}
	var h chainhash.Hash
	copy(h[:], sigHash)
	sig := ecdsaSign(privKey, h)
	sig = append(sig, byte(txscript.SigHashAll))

	sigScript, err := script.PaymentSigScript(p.XPubKey, sig, p.MPubKey, p.RedeemScript)
	if err != nil {
		return "", nil, err
	}
	tx.TxIn[0].SignatureScript = sigScript

	return finalizeTx(tx)
}

// signRawTxResult is the shape of a bitcoind-style signrawtransactionwithwallet response.
type signRawTxResult struct {
	Hex      string `json:"hex"`
	Complete bool   `json:"complete"`
}

// CreateFeeTransaction asks the wallet itself to build and sign the
// service-node fee payment: the wallet already holds the keys for p.Inputs,
// so this defers to its own createrawtransaction/signrawtransactionwithwallet
// RPCs rather than assembling a scriptSig by hand, mirroring the original
// connector's dependence on the wallet's own raw-tx RPCs for this one
// non-HTLC transaction.
func (w *Wallet) CreateFeeTransaction(ctx context.Context, p wallet.FeeParams) (string, []byte, error) {
	if len(p.Inputs) == 0 {
		return "", nil, errors.New("btc: no fee inputs provided")
	}

	type rpcInput struct {
		TxID string `json:"txid"`
		Vout uint32 `json:"vout"`
	}
	inputs := make([]rpcInput, len(p.Inputs))
	for i, u := range p.Inputs {
		inputs[i] = rpcInput{TxID: u.TxID, Vout: u.Vout}
	}

	opReturnScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddData(p.OPReturnData).
		Script()
	if err != nil {
		return "", nil, err
	}

	collateralAddr, err := w.FromXAddr(p.CollateralAddr)
	if err != nil {
		return "", nil, err
	}

	outputs := map[string]interface{}{
		collateralAddr: float64(p.FeeAmount) / float64(w.cfg.COIN),
		"data":         hex.EncodeToString(opReturnScript),
	}

	var rawHex string
	if err := w.call(ctx, "createrawtransaction", []interface{}{inputs, outputs}, &rawHex); err != nil {
		return "", nil, err
	}

	var signed signRawTxResult
	if err := w.call(ctx, "signrawtransactionwithwallet", []interface{}{rawHex}, &signed); err != nil {
		return "", nil, err
	}
	if !signed.Complete {
		return "", nil, errors.New("btc: wallet left the fee transaction only partially signed")
	}

	raw, err := hex.DecodeString(signed.Hex)
	if err != nil {
		return "", nil, err
	}
	tx := wire.NewMsgTx(2)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return "", nil, fmt.Errorf("btc: decoding signed fee transaction: %w", err)
	}
	return tx.TxHash().String(), raw, nil
}

func buildSpendTx(prevHash string, prevVout uint32, amount, lockTime int64, toAddr [20]byte, params Params) (*wire.MsgTx, error) {
	h, err := chainhash.NewHashFromStr(prevHash)
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: *h, Index: prevVout},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	pkScript, err := payToPubKeyHashScript(toAddr, params.PubKeyHashAddrID)
	if err != nil {
		return nil, err
	}
	tx.AddTxOut(&wire.TxOut{Value: amount, PkScript: pkScript})
	if lockTime > 0 {
		tx.LockTime = uint32(lockTime)
	}
	return tx, nil
}

// payToPubKeyHashScript builds a standard P2PKH output script directly from
// the 20-byte hash, bypassing btcutil.Address / chaincfg.Params entirely:
// every chain configured here is a bitcoind clone with its own address
// version byte, most of which were never registered as a chaincfg.Params,
// so the version parameter is unused beyond documenting intent.
func payToPubKeyHashScript(hash160 [20]byte, _ byte) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(hash160[:]).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
}

// finalizeTx serializes tx and round-trips it through a decode step,
// standing in for the original connector's decoderawtransaction RPC
// confirmation. Unlike the source, a decode failure here is returned as an
// actual error rather than silently reported as success (see DESIGN.md's
// open-question decision).
func finalizeTx(tx *wire.MsgTx) (string, []byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", nil, err
	}
	raw := buf.Bytes()
	decoded := wire.NewMsgTx(2)
	if err := decoded.Deserialize(bytes.NewReader(raw)); err != nil {
		return "", nil, fmt.Errorf("btc: decoderawtransaction round-trip failed: %w", err)
	}
	return decoded.TxHash().String(), raw, nil
}

// ecdsaSign produces a low-S, DER-encoded ECDSA signature, the format
// expected on a legacy scriptSig stack (without the trailing sighash-type
// byte, which callers append themselves).
func ecdsaSign(priv *btcec.PrivateKey, hash chainhash.Hash) []byte {
	sig := ecdsa.Sign(priv, hash[:])
	return sig.Serialize()
}
