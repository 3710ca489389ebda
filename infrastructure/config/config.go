package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/ringnet/ringd/domain/consensus/utils/pow"
	"github.com/ringnet/ringd/infrastructure/logger"
	"github.com/ringnet/ringd/util"
	"github.com/ringnet/ringd/version"
)

const (
	defaultConfigFilename = "ringd.conf"
	defaultDataDirname    = "data"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "ringd.log"
	defaultErrLogFilename = "ringd_err.log"
	defaultLogLevel       = "info"
	defaultPowMode        = "fast"
)

var (
	// DefaultAppDir is the default home directory for ringd.
	DefaultAppDir = util.AppDataDir("ringd", false)

	defaultConfigFile = filepath.Join(DefaultAppDir, defaultConfigFilename)
)

// Flags defines the configuration options for ringd.
//
// See LoadConfig for details on the configuration load process.
type Flags struct {
	ShowVersion  bool   `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile   string `short:"C" long:"configfile" description:"Path to configuration file"`
	AppDir       string `short:"b" long:"appdir" description:"Directory to store data"`
	LogDir       string `long:"logdir" description:"Directory to log output"`
	LogLevel     string `short:"d" long:"loglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	MiningScript string `long:"miningscript" description:"Hex-encoded script coinbase rewards and burn change are paid to"`
	Generate     bool   `long:"generate" description:"Generate (mine) blocks paying to --miningscript"`
	PowModeFlag  string `long:"powmode" description:"Proof-of-work dataset mode {fast, light}. Fast mode trades memory for verification speed"`
	NetworkFlags
}

// Config holds the parsed configuration of a ringd instance.
type Config struct {
	*Flags

	// PowMode is the parsed proof-of-work dataset mode.
	PowMode pow.Mode
}

func defaultFlags() *Flags {
	return &Flags{
		ConfigFile:  defaultConfigFile,
		AppDir:      DefaultAppDir,
		LogLevel:    defaultLogLevel,
		PowModeFlag: defaultPowMode,
	}
}

// LoadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
func LoadConfig() (*Config, error) {
	cfgFlags := defaultFlags()
	parser := flags.NewParser(cfgFlags, flags.HelpFlag)
	_, err := parser.Parse()

	// Show the version and exit if the version flag was specified.
	if cfgFlags.ShowVersion {
		appName := filepath.Base(os.Args[0])
		appName = strings.TrimSuffix(appName, filepath.Ext(appName))
		fmt.Println(appName, "version", version.Version())
		os.Exit(0)
	}

	if err != nil {
		return nil, err
	}

	// Load additional config from file if it exists.
	if fileExists(cfgFlags.ConfigFile) {
		err = flags.NewIniParser(parser).ParseFile(cfgFlags.ConfigFile)
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing config file %s", cfgFlags.ConfigFile)
		}
		// Command line options take precedence over the file.
		_, err = parser.Parse()
		if err != nil {
			return nil, err
		}
	}

	err = cfgFlags.ResolveNetwork(parser)
	if err != nil {
		return nil, err
	}

	cfg := &Config{Flags: cfgFlags}

	cfg.AppDir = filepath.Join(cleanAndExpandPath(cfg.AppDir), cfg.NetParams().Name)
	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(cfg.AppDir, defaultLogDirname)
	}

	powMode, ok := pow.ParseMode(cfg.PowModeFlag)
	if !ok {
		return nil, errors.Errorf("invalid proof-of-work mode %q: must be one of {fast, light}", cfg.PowModeFlag)
	}
	cfg.PowMode = powMode

	if cfg.MiningScript != "" {
		_, err := parseHexScript(cfg.MiningScript)
		if err != nil {
			return nil, err
		}
	}
	if cfg.Generate && cfg.MiningScript == "" {
		return nil, errors.New("--generate requires --miningscript to pay the rewards to")
	}

	logFile := filepath.Join(cfg.LogDir, defaultLogFilename)
	errLogFile := filepath.Join(cfg.LogDir, defaultErrLogFilename)
	logger.InitLog(logFile, errLogFile)
	if !logger.SetLogLevelsString(cfg.LogLevel) {
		return nil, errors.Errorf("invalid log level %q", cfg.LogLevel)
	}

	return cfg, nil
}

// DataDir returns the directory the database lives in.
func (cfg *Config) DataDir() string {
	return filepath.Join(cfg.AppDir, defaultDataDirname)
}

func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		return !os.IsNotExist(err)
	}
	return true
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// given path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(DefaultAppDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}
	return filepath.Clean(os.ExpandEnv(path))
}

func parseHexScript(scriptHex string) ([]byte, error) {
	script, err := hex.DecodeString(scriptHex)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid mining script %q", scriptHex)
	}
	return script, nil
}
