package vm

import "github.com/tliron/commonlog"

var (
	gcLog    = commonlog.GetLogger("phoebe.gc")
	allocLog = commonlog.GetLogger("phoebe.alloc")
	evalLog  = commonlog.GetLogger("phoebe.eval")
)
