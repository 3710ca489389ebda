package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/davecgh/go-spew/spew"
	"github.com/ringnet/ringd/domain"
	"github.com/ringnet/ringd/infrastructure/config"
	"github.com/ringnet/ringd/infrastructure/db/database"
	"github.com/ringnet/ringd/infrastructure/db/database/ldb"
	"github.com/ringnet/ringd/infrastructure/os/signal"
	"github.com/ringnet/ringd/util/panics"
	"github.com/ringnet/ringd/version"
)

const (
	leveldbCacheSizeMiB = 256
	dbDirname           = "db"
)

// StartApp starts ringd up: it loads the configuration, opens the
// database, builds the node core and blocks until an interrupt arrives.
func StartApp() error {
	interrupt := signal.InterruptListener()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer panics.HandlePanic(log, nil)

	log.Infof("Version %s", version.Version())
	log.Debugf("Configuration: %s", spew.Sdump(cfg.Flags))

	err = os.MkdirAll(cfg.AppDir, 0700)
	if err != nil {
		log.Errorf("Could not create application directory %s: %s", cfg.AppDir, err)
		return err
	}
	dbPath := filepath.Join(cfg.AppDir, dbDirname)
	log.Infof("Loading database from '%s'", dbPath)
	db, err := ldb.NewLevelDB(dbPath, leveldbCacheSizeMiB)
	if err != nil {
		return err
	}
	defer func() {
		err := db.Close()
		if err != nil {
			log.Errorf("Failed closing the database: %s", err)
		}
	}()

	node, err := buildNode(cfg, db)
	if err != nil {
		log.Errorf("Failed starting the node: %s", err)
		return err
	}

	if cfg.Generate {
		spawn(func() { mineLoop(node, interrupt) })
	}

	<-interrupt
	log.Info("Gracefully shutting down ringd...")
	return nil
}

func buildNode(cfg *config.Config, db database.Database) (*Node, error) {
	params := cfg.NetParams()
	log.Infof("Starting on the %s network", params.Name)

	domainInstance, err := domain.New(params, db, cfg.PowMode)
	if err != nil {
		return nil, err
	}
	var miningScript []byte
	if cfg.MiningScript != "" {
		miningScript, err = MiningScriptFromHex(cfg.MiningScript)
		if err != nil {
			return nil, err
		}
	}
	snapshot := domainInstance.Consensus().Snapshot()
	log.Infof("Chain state: height %d, best block %s", snapshot.Height, snapshot.BestBlockHash)
	return NewNode(params, domainInstance, miningScript), nil
}

// mineLoop mines block after block until the process is interrupted.
func mineLoop(node *Node, interrupt <-chan struct{}) {
	for !signal.InterruptRequested(interrupt) {
		hashes, err := node.Generate(1)
		if err != nil {
			log.Errorf("Mining failed: %s", err)
			return
		}
		log.Infof("Mined block %s at height %d", hashes[0], node.domain.Consensus().Height())
	}
}
