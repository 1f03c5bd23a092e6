// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package session

import "github.com/xbridge-swap/xbridge-core/script"

// PeerID derives the 20-byte peer identifier an Envelope addresses a Link
// by, from a peer's compressed pubkey. The same HASH160 operation
// wallet/btc.GetKeyID uses for on-chain key IDs.
func PeerID(pubKey []byte) [PeerIDSize]byte {
	var id [PeerIDSize]byte
	copy(id[:], script.Hash160(pubKey))
	return id
}
