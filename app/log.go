package app

import (
	"github.com/ringnet/ringd/infrastructure/logger"
	"github.com/ringnet/ringd/util/panics"
)

var log = logger.RegisterSubSystem("RNGD")
var spawn = panics.GoroutineWrapperFunc(log)
