package fixups

import (
	"time"

	"github.com/m-lab/go/logx"
)

var logBadRule = logx.NewLogEvery(nil, 10*time.Second)
