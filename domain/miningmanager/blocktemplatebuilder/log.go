package blocktemplatebuilder

import "github.com/ringnet/ringd/infrastructure/logger"

var log = logger.RegisterSubSystem("BTPL")
