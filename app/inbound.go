// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package app

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/xbridge-swap/xbridge-core/coin"
	"github.com/xbridge-swap/xbridge-core/session"
	"github.com/xbridge-swap/xbridge-core/swaporder"
)

// transactionPayload mirrors encodeTransactionPayload's wire JSON, the
// xbcTransaction/xbcTransactionAccepting body (§4.7 Create step 6).
type transactionPayload struct {
	ID           string `json:"id"`
	From         string `json:"from"`
	FromCurrency string `json:"fromCurrency"`
	FromAmount   int64  `json:"fromAmount"`
	To           string `json:"to"`
	ToCurrency   string `json:"toCurrency"`
	ToAmount     int64  `json:"toAmount"`
	CreatedMicro int64  `json:"createdMicro"`
	BlockHash    string `json:"blockHash"`
	Inputs       []struct {
		TxID    string `json:"txid"`
		Vout    uint32 `json:"vout"`
		RawAddr []byte `json:"rawAddr"`
		Sig     []byte `json:"sig"`
	} `json:"inputs"`
}

// HandleEnvelope folds an inbound gossip packet, already signature-verified
// and deduped by session.Link, into the local order table. A caller wires
// this as the receive callback of a session.Hub (or any other transport).
//
// Only CmdTransaction and CmdTransactionAccepting are dispatched on: C7's
// scope is Create/Accept (spec.md §4.7), not the full escrow handshake the
// rest of session.Command enumerates -- those remaining wire constants are
// carried for protocol compatibility but nothing in this coordinator
// produces or consumes them.
func (a *App) HandleEnvelope(env *session.Envelope) {
	switch env.Packet.Command {
	case session.CmdTransaction:
		a.handleTransactionAnnounce(env)
	case session.CmdTransactionAccepting:
		a.handleTransactionAccepting(env)
	}
}

func decodeTransactionPayload(raw []byte) (*transactionPayload, swaporder.ID, error) {
	var p transactionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, swaporder.ID{}, fmt.Errorf("app: decoding transaction payload: %w", err)
	}
	idBytes, err := hex.DecodeString(p.ID)
	if err != nil || len(idBytes) != swaporder.IDSize {
		return nil, swaporder.ID{}, fmt.Errorf("app: malformed order id %q", p.ID)
	}
	var id swaporder.ID
	copy(id[:], idBytes)
	return &p, id, nil
}

// handleTransactionAnnounce registers a Maker's xbcTransaction as a new
// Taker-side order, if this process doesn't already know about it.
func (a *App) handleTransactionAnnounce(env *session.Envelope) {
	p, id, err := decodeTransactionPayload(env.Packet.Payload)
	if err != nil {
		return
	}
	if _, exists := a.cfg.Orders.Get(id); exists {
		return
	}

	o := swaporder.New(swaporder.RoleTaker)
	o.ID = id
	o.FromAddr, o.ToAddr = p.From, p.To
	o.FromCurrency, o.ToCurrency = p.FromCurrency, p.ToCurrency
	o.FromAmount, o.ToAmount = p.FromAmount, p.ToAmount
	o.BlockHash = p.BlockHash
	o.SPubKey = env.Packet.PubKey

	o.UsedCoins = make([]*coin.Unspent, len(p.Inputs))
	for i, in := range p.Inputs {
		u := &coin.Unspent{TxID: in.TxID, Vout: in.Vout, Signature: in.Sig}
		copy(u.RawAddr[:], in.RawAddr)
		o.UsedCoins[i] = u
	}
	a.cfg.Orders.Put(o)
}

// handleTransactionAccepting advances an order this process already
// created into trPending once the Taker's acceptance is relayed back.
func (a *App) handleTransactionAccepting(env *session.Envelope) {
	_, id, err := decodeTransactionPayload(env.Packet.Payload)
	if err != nil {
		return
	}
	o, ok := a.cfg.Orders.Get(id)
	if !ok {
		return
	}
	if !o.TryLock() {
		return
	}
	defer o.Unlock()
	if o.StateLocked() != swaporder.StateNew {
		return
	}
	o.SetStateLocked(swaporder.StatePending)
}
