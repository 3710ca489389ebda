package signal

import (
	"github.com/ringnet/ringd/infrastructure/logger"
	"github.com/ringnet/ringd/util/panics"
)

var log = logger.RegisterSubSystem("SIGN")
var spawn = panics.GoroutineWrapperFunc(log)
