package resolver

import (
	"database/sql"
	"time"

	"go.uber.org/zap"
)

var sqlErrNoRows = sql.ErrNoRows

func nowForTest() time.Time { return time.Unix(1700000000, 0) }

func testLogger() *zap.Logger { return zap.NewNop() }
