package main

import "time"

// GlobalFlags holds persistent flags shared by all commands
type GlobalFlags struct {
	ConfigPath string
	Debug      bool
}

// ReclaimFlags holds flags for the reclaim command
type ReclaimFlags struct {
	Port  int
	Grace time.Duration
}

// StatusFlags holds flags for querying a running launcher
type StatusFlags struct {
	URL     string
	Timeout time.Duration
}

// HistoryFlags holds flags for the history command
type HistoryFlags struct {
	Limit int
}
