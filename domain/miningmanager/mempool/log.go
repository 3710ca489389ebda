package mempool

import "github.com/ringnet/ringd/infrastructure/logger"

var log = logger.RegisterSubSystem("TXMP")
