// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"
	"gopkg.in/go-ini/ini.v1"

	"github.com/xbridge-swap/xbridge-core/dex"
	"github.com/xbridge-swap/xbridge-core/dex/config"
	"github.com/xbridge-swap/xbridge-core/wallet"
)

const (
	defaultConfigFilename = "xbridged.conf"
	defaultLogFilename    = "xbridged.log"
	defaultKeyFilename    = "hubkey"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultMaxLogZips     = 16
	defaultListenAddr     = "0.0.0.0:51470"
	defaultPingPeriod     = 30 * time.Second
)

// tickerConfig is one [<TICKER>] section: the chain constants a
// wallet.Connector needs plus the RPC endpoint to reach its wallet daemon.
type tickerConfig struct {
	wallet.ChainConfig
	Type        string // "btc" or "bch" -- selects the Connector family
	RPCHost     string
	RPCPort     string
	RPCUser     string
	RPCPassword string

	// Address version bytes, mirrored from the chain's own address
	// encoding rather than a registered chaincfg.Params entry (most
	// configured chains here are clones no chaincfg.Params covers).
	PubKeyHashAddrID byte
	ScriptHashAddrID byte
	WIFByte          byte // unused for Type=bch
}

// procOpts carries process-level knobs that don't belong in the running
// configuration handed to App.
type procOpts struct {
	HTTPProfile bool
	CPUProfile  string
}

// xbridgedConf is everything main needs to build a running hub.
type xbridgedConf struct {
	Listen         string
	SeedNodes      []string
	ControlChain   string
	IsServiceNode  bool
	KeyPath        string
	PingPeriod     time.Duration
	RPCThreads     int
	NoWallets      bool
	MaxMempoolMB   int
	Tickers        map[string]*tickerConfig
	LogMaker       *dex.LoggerMaker
}

type flagsData struct {
	AppDataDir  string `short:"A" long:"appdata" description:"Path to application home directory"`
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	LogDir      string `long:"logdir" description:"Directory to log output."`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}, optionally per subsystem e.g. info,HUB=debug"`
	MaxLogZips  int    `long:"maxlogzips" description:"The number of zipped log files created by the log rotator to be retained. Setting to 0 keeps all."`
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`

	Listen       string   `long:"listen" description:"Address for the gossip hub to listen on"`
	SeedNodes    []string `long:"seednode" description:"A service node address to dial at startup (repeatable)"`
	ControlChain string   `long:"controlchain" description:"Ticker of the chain whose block hash seeds order IDs and whose UTXOs pay service-node fees"`
	ServiceNode  bool     `long:"servicenode" description:"Announce this node as a service node able to relay and sign orders"`
	KeyPath      string   `long:"keypath" description:"Path to the hub's signing key file"`
	PingPeriod   string   `long:"pingperiod" description:"Gossip link keepalive ping interval"`

	NoWallets         bool `long:"dxnowallets" description:"Start without connecting to any configured wallet RPC"`
	RPCThreads        int  `long:"rpcthreads" description:"Number of concurrent wallet RPC requests to allow per chain"`
	MaxMempoolXBridge int  `long:"maxmempoolxbridge" description:"Maximum size, in megabytes, of the recently-seen packet hash set used to drop duplicate gossip relays"`

	HTTPProfile bool   `long:"httpprof" short:"p" description:"Start HTTP profiler."`
	CPUProfile  string `long:"cpuprofile" description:"File for CPU profiling."`
}

// defaultAppDataDir returns ~/.xbridged (or the OS equivalent), the default
// application home directory. No third-party helper for this exists outside
// the dcrd family (dcrutil.AppDataDir), which is unrelated to this module's
// btcsuite-based stack, so this is a one-line hand roll rather than a new
// dependency chain pulled in for a single default path.
func defaultAppDataDir() string {
	var home string
	if u, err := user.Current(); err == nil {
		home = u.HomeDir
	}
	if home == "" {
		home = "."
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(home, "AppData", "Local", appName)
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", appName)
	}
	return filepath.Join(home, "."+appName)
}

// cleanAndExpandPath expands environment variables and a leading ~ in path.
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}
	path = os.ExpandEnv(path)
	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path)
	}
	path = path[1:]
	userName := ""
	if i := strings.IndexAny(path, string(os.PathSeparator)); i != -1 {
		userName = path[:i]
		path = path[i:]
	}
	homeDir := ""
	var u *user.User
	var err error
	if userName == "" {
		u, err = user.Current()
	} else {
		u, err = user.Lookup(userName)
	}
	if err == nil {
		homeDir = u.HomeDir
	}
	if homeDir == "" {
		homeDir = "."
	}
	return filepath.Join(homeDir, path)
}

// parseAndSetDebugLevels parses debugLevel and applies it to the package
// logger registry.
func parseAndSetDebugLevels(debugLevel string) (*dex.LoggerMaker, error) {
	lm, err := dex.NewLoggerMaker(logWriter{}, debugLevel)
	if err != nil {
		return nil, err
	}
	for subsysID := range subsystemLoggers {
		subsystemLoggers[subsysID] = lm.NewLogger(subsysID)
	}
	setLogLevels(lm.DefaultLevel)
	for subsysID, lvl := range lm.Levels {
		if _, exists := subsystemLoggers[subsysID]; !exists {
			return nil, fmt.Errorf("invalid subsystem %q for -debuglevel, supported subsystems are %v",
				subsysID, supportedSubsystems())
		}
		setLogLevel(subsysID, lvl.String())
	}
	return lm, nil
}

// loadConfig parses command-line flags and an ini config file, then loads
// one [<TICKER>] section per configured chain.
func loadConfig() (*xbridgedConf, *procOpts, error) {
	loadConfigError := func(err error) (*xbridgedConf, *procOpts, error) {
		return nil, nil, err
	}

	cfg := flagsData{
		AppDataDir:        defaultAppDataDir(),
		MaxLogZips:        defaultMaxLogZips,
		DebugLevel:        defaultLogLevel,
		Listen:            defaultListenAddr,
		ControlChain:      "BLOCK",
		RPCThreads:        4,
		MaxMempoolXBridge: 1024,
	}

	var preCfg flagsData
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		} else if ok && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
	}

	if preCfg.ShowVersion {
		fmt.Printf("%s version %s (Go version %s %s/%s)\n",
			appName, Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}
	if preCfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	if preCfg.AppDataDir != "" {
		cfg.AppDataDir, err = filepath.Abs(preCfg.AppDataDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "unable to determine working directory: %v\n", err)
			os.Exit(1)
		}
	}
	isDefaultConfigFile := preCfg.ConfigFile == ""
	if isDefaultConfigFile {
		preCfg.ConfigFile = filepath.Join(cfg.AppDataDir, defaultConfigFilename)
	} else if !filepath.IsAbs(preCfg.ConfigFile) {
		preCfg.ConfigFile = filepath.Join(cfg.AppDataDir, preCfg.ConfigFile)
	}

	configFile := "NONE (defaults)"
	haveConfigFile := true
	if _, err := os.Stat(preCfg.ConfigFile); os.IsNotExist(err) {
		if !isDefaultConfigFile {
			fmt.Fprintln(os.Stderr, err)
			return loadConfigError(err)
		}
		fmt.Printf("Config file (%s) does not exist. Using defaults.\n", preCfg.ConfigFile)
		haveConfigFile = false
	} else {
		// A [Main] section holds the global options; every other section is
		// a per-ticker chain configuration, loaded further below. Applying
		// [Main] before the second flags.Parse lets command-line flags take
		// precedence over the file, matching go-flags' own file-then-flags
		// precedence without feeding go-flags a file format it doesn't
		// understand (arbitrary, dynamically-named chain sections).
		cfgFile, err := ini.Load(preCfg.ConfigFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return loadConfigError(err)
		}
		if mainSection, err := cfgFile.GetSection("Main"); err == nil {
			if err := mainSection.MapTo(&cfg); err != nil {
				return loadConfigError(fmt.Errorf("failed to parse [Main] section: %v", err))
			}
		}
		configFile = preCfg.ConfigFile
	}

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err = parser.Parse(); err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return loadConfigError(err)
	}

	if err = os.MkdirAll(cfg.AppDataDir, 0700); err != nil {
		return loadConfigError(fmt.Errorf("failed to create app data directory: %v", err))
	}

	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(cfg.AppDataDir, defaultLogDirname)
	} else if !filepath.IsAbs(cfg.LogDir) {
		cfg.LogDir = filepath.Join(cfg.AppDataDir, cfg.LogDir)
	}
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	if cfg.KeyPath == "" {
		cfg.KeyPath = filepath.Join(cfg.AppDataDir, defaultKeyFilename)
	} else if !filepath.IsAbs(cfg.KeyPath) {
		cfg.KeyPath = filepath.Join(cfg.AppDataDir, cfg.KeyPath)
	}

	if cfg.MaxLogZips < 0 {
		cfg.MaxLogZips = 0
	}
	initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename), cfg.MaxLogZips)

	log.Infof("App data folder: %s", cfg.AppDataDir)
	log.Infof("Log folder:      %s", cfg.LogDir)
	log.Infof("Config file:     %s", configFile)

	logMaker, err := parseAndSetDebugLevels(cfg.DebugLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return loadConfigError(err)
	}

	pingPeriod := defaultPingPeriod
	if cfg.PingPeriod != "" {
		pingPeriod, err = time.ParseDuration(cfg.PingPeriod)
		if err != nil {
			return loadConfigError(fmt.Errorf("invalid -pingperiod %q: %v", cfg.PingPeriod, err))
		}
	}

	tickers := make(map[string]*tickerConfig)
	if haveConfigFile {
		err = config.ParseSections(preCfg.ConfigFile, func() interface{} {
			return &tickerConfig{}
		}, func(name string, obj interface{}) error {
			if name == "Main" {
				return nil
			}
			tc := obj.(*tickerConfig)
			tc.Ticker = name
			if tc.Type == "" {
				return fmt.Errorf("section [%s]: missing type=btc|bch", name)
			}
			tickers[name] = tc
			return nil
		})
		if err != nil {
			return loadConfigError(fmt.Errorf("failed to load chain sections: %v", err))
		}
	}
	if !cfg.NoWallets {
		if _, ok := tickers[cfg.ControlChain]; !ok {
			return loadConfigError(fmt.Errorf("control chain %s has no [%s] configuration section",
				cfg.ControlChain, cfg.ControlChain))
		}
	}

	xcfg := &xbridgedConf{
		Listen:         cfg.Listen,
		SeedNodes:      cfg.SeedNodes,
		ControlChain:   cfg.ControlChain,
		IsServiceNode:  cfg.ServiceNode,
		KeyPath:        cfg.KeyPath,
		PingPeriod:     pingPeriod,
		RPCThreads:     cfg.RPCThreads,
		NoWallets:      cfg.NoWallets,
		MaxMempoolMB:   cfg.MaxMempoolXBridge,
		Tickers:        tickers,
		LogMaker:       logMaker,
	}

	opts := &procOpts{
		HTTPProfile: cfg.HTTPProfile,
		CPUProfile:  cfg.CPUProfile,
	}

	return xcfg, opts, nil
}
