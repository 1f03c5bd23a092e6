// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/rpcclient"

	"github.com/xbridge-swap/xbridge-core/wallet"
	"github.com/xbridge-swap/xbridge-core/wallet/bch"
	"github.com/xbridge-swap/xbridge-core/wallet/btc"
)

// rpcRequester adapts *rpcclient.Client's plain RawRequest(method, params)
// to the ctx-first RawRequester shape both wallet/btc and wallet/bch expect,
// throttled to at most threads concurrent calls so one chain's slow wallet
// daemon can't monopolize every worker goroutine touching it.
// The underlying client call isn't itself cancelable; ctx is accepted for
// interface conformance only.
type rpcRequester struct {
	client *rpcclient.Client
	sem    chan struct{}
}

func (r *rpcRequester) RawRequest(_ context.Context, method string, params []json.RawMessage) (json.RawMessage, error) {
	r.sem <- struct{}{}
	defer func() { <-r.sem }()
	return r.client.RawRequest(method, params)
}

// dialWalletRPC opens a JSON-RPC connection to a chain's wallet daemon,
// allowing at most threads concurrent in-flight requests.
func dialWalletRPC(tc *tickerConfig, threads int) (*rpcRequester, error) {
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		HTTPPostMode: true,
		DisableTLS:   true,
		Host:         fmt.Sprintf("%s:%s", tc.RPCHost, tc.RPCPort),
		User:         tc.RPCUser,
		Pass:         tc.RPCPassword,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: rpc dial: %w", tc.Ticker, err)
	}
	if threads < 1 {
		threads = 1
	}
	return &rpcRequester{client: client, sem: make(chan struct{}, threads)}, nil
}

// buildConnector constructs the wallet.Connector matching tc.Type.
func buildConnector(tc *tickerConfig, rr *rpcRequester) (wallet.Connector, error) {
	switch tc.Type {
	case "btc":
		return btc.New(tc.ChainConfig, btc.Params{
			PubKeyHashAddrID: tc.PubKeyHashAddrID,
			ScriptHashAddrID: tc.ScriptHashAddrID,
			WIFByte:          tc.WIFByte,
		}, rr), nil
	case "bch":
		return bch.New(tc.ChainConfig, bch.Params{
			PubKeyHashAddrID: tc.PubKeyHashAddrID,
			ScriptHashAddrID: tc.ScriptHashAddrID,
		}, rr), nil
	default:
		return nil, fmt.Errorf("%s: unrecognized wallet type %q", tc.Ticker, tc.Type)
	}
}
