// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/xbridge-swap/xbridge-core/dex/encode"
	"github.com/xbridge-swap/xbridge-core/dex/encrypt"
)

// hubKey loads the hub's long-term signing key from path, creating one if
// none exists yet.
func hubKey(path, pass string) (*btcec.PrivateKey, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Infof("Creating new hub signing key file at %s...", path)
		return createAndStoreKey(path, pass)
	}
	log.Infof("Loading hub signing key from %s...", path)
	return loadKeyFile(path, pass)
}

func loadKeyFile(path, pass string) (*btcec.PrivateKey, error) {
	pkFileBuffer, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ReadFile: %v", err)
	}

	ver, pushes, err := encode.DecodeBlob(pkFileBuffer)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal signing key data: %v", err)
	}
	if ver != 0 {
		return nil, fmt.Errorf("unrecognized key file version %d", ver)
	}
	if len(pushes) != 2 {
		return nil, fmt.Errorf("invalid signing key file, containing %d data pushes instead of 2", len(pushes))
	}
	keyParams := pushes[0]
	encKey := pushes[1]

	crypter, err := encrypt.Deserialize(pass, keyParams)
	if err != nil {
		return nil, err
	}
	defer crypter.Close()

	keyB, err := crypter.Decrypt(encKey)
	if err != nil {
		return nil, err
	}
	priv, _ := btcec.PrivKeyFromBytes(keyB)
	return priv, nil
}

func createAndStoreKey(path, pass string) (*btcec.PrivateKey, error) {
	if pass == "" {
		return nil, fmt.Errorf("empty password")
	}
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("key file exists")
	}

	privKey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate hub signing key: %v", err)
	}

	crypter := encrypt.NewCrypter(pass)
	defer crypter.Close()
	keyParams := crypter.Serialize()
	encKey, err := crypter.Encrypt(privKey.Serialize())
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt hub signing key: %v", err)
	}
	if _, err := crypter.Decrypt(encKey); err != nil {
		return nil, fmt.Errorf("failed to decrypt hub signing key: %v", err)
	}

	data := encode.BuildyBytes{0}.AddData(keyParams).AddData(encKey)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write hub signing key: %v", err)
	}

	return privKey, nil
}
