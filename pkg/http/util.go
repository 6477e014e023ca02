package http

import (
	"time"

	xutil "OraclePull/pkg/util"
)

func ParseIntDefault(s string, def int) int { return xutil.ParseIntDefault(s, def) }

func ParseTimeDefault(s string, def time.Time) time.Time { return xutil.ParseTimeDefault(s, def) }
