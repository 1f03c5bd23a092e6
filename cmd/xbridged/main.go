// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"

	"github.com/xbridge-swap/xbridge-core/app"
	"github.com/xbridge-swap/xbridge-core/coinlock"
	"github.com/xbridge-swap/xbridge-core/script"
	"github.com/xbridge-swap/xbridge-core/session"
	"github.com/xbridge-swap/xbridge-core/snode"
	"github.com/xbridge-swap/xbridge-core/swaporder"
	"github.com/xbridge-swap/xbridge-core/wallet"
)

func mainCore(ctx context.Context) error {
	cfg, opts, err := loadConfig()
	if err != nil {
		fmt.Printf("Failed to load %s config: %s\n", appName, err.Error())
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	if opts.CPUProfile != "" {
		f, err := os.Create(opts.CPUProfile)
		if err != nil {
			return err
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}
	if opts.HTTPProfile {
		log.Warnf("Starting the HTTP profiler on path /debug/pprof/.")
		http.Handle("/", http.RedirectHandler("/debug/pprof/", http.StatusSeeOther))
		go func() {
			if err := http.ListenAndServe(":9232", nil); err != nil {
				log.Errorf("ListenAndServe failed for http/pprof: %v", err)
			}
		}()
	}

	log.Infof("%s version %s (Go version %s)", appName, Version, runtime.Version())

	keyPass, err := passwordPrompt("Hub signing key password: ")
	if err != nil {
		return fmt.Errorf("cannot use password: %v", err)
	}
	hKey, err := hubKey(cfg.KeyPath, keyPass)
	if err != nil {
		return err
	}

	wallets := make(map[string]wallet.Connector)
	if !cfg.NoWallets {
		for ticker, tc := range cfg.Tickers {
			rr, err := dialWalletRPC(tc, cfg.RPCThreads)
			if err != nil {
				return err
			}
			conn, err := buildConnector(tc, rr)
			if err != nil {
				return err
			}
			if !conn.Init(ctx) {
				log.Warnf("Wallet %s (%s) did not respond to initialization", ticker, tc.Type)
			}
			wallets[ticker] = conn
			log.Infof("Wired wallet RPC for %s (%s)", ticker, tc.Type)
		}
	}

	directory := snode.NewDirectory()
	exchange := snode.NewExchange()

	var orders *swaporder.Table
	var onWalletReachability func(ticker string, reachable bool)
	var pingService func(ctx context.Context)
	if cfg.IsServiceNode {
		orders = exchange.Orders()
		onWalletReachability = exchange.SetWalletActive

		var selfKey [snode.PubKeySize]byte
		copy(selfKey[:], hKey.PubKey().SerializeCompressed())
		var collateral [20]byte
		copy(collateral[:], script.Hash160(hKey.PubKey().SerializeCompressed()))
		pingService = func(_ context.Context) {
			services := make([]string, 0, len(wallets))
			for ticker := range wallets {
				if exchange.IsWalletActive(ticker) {
					services = append(services, ticker)
				}
			}
			directory.Ping(selfKey, services, session.ProtocolVersion, collateral)
		}
	} else {
		orders = swaporder.NewTable()
	}

	dedup := session.NewDedup(cfg.MaxMempoolMB)
	var hub *session.Hub

	appCfg := app.Config{
		Directory:       directory,
		Locks:           coinlock.New(),
		Orders:          orders,
		Wallets:         wallets,
		ControlChain:    cfg.ControlChain,
		ProtocolVersion: session.ProtocolVersion,
		IsServiceNode:   cfg.IsServiceNode,
		Send: func(ctx context.Context, peerPubKey []byte, pkt *session.Packet) error {
			return hub.Send(ctx, peerPubKey, pkt)
		},
		MKey:                 hKey.Serialize(),
		OnWalletReachability: onWalletReachability,
		PingService:          pingService,
	}
	a := app.New(appCfg)
	hub = session.NewHub(dedup, cfg.PingPeriod, a.HandleEnvelope)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Infof("Hub listening on %s", cfg.Listen)
		if err := hub.ListenAndServe(ctx, cfg.Listen); err != nil {
			log.Errorf("hub listener stopped: %v", err)
		}
	}()

	for _, addr := range cfg.SeedNodes {
		if err := hub.Dial(ctx, addr, hKey.PubKey().SerializeCompressed()); err != nil {
			log.Warnf("failed to dial seed node %s: %v", addr, err)
		}
	}

	timer := app.NewTimer(a)
	wg.Add(1)
	go func() {
		defer wg.Done()
		timer.Run(ctx)
	}()

	log.Info("The hub is running. Hit CTRL+C to quit...")
	<-ctx.Done()
	log.Info("Stopping hub...")
	wg.Wait()
	log.Info("Bye!")

	return nil
}

func main() {
	ctx, cancel := withShutdownCancel(context.Background())
	go shutdownListener(cancel)

	if err := mainCore(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(0)
}
