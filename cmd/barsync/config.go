package main

import "time"

const (
	GatewayUrl     = "ws://127.0.0.1:4002/ws"
	DatabasePath   = "data/bars.duckdb"
	RequestTimeout = 60 * time.Second
	BarDuration    = "1 D"
	BarSize        = "1 min"
)
