package main

import "time"

const (
	GatewayUrl     = "ws://127.0.0.1:4002/ws"
	RequestTimeout = 10 * time.Second
)
