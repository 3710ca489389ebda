package burnindex

import "github.com/ringnet/ringd/infrastructure/logger"

var log = logger.RegisterSubSystem("BURN")
