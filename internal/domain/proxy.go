package domain

import "time"

// ProxyEndpoint is one outbound egress point used when establishing bookmaker
// sessions. Stats are mutated by the rotator only.
type ProxyEndpoint struct {
	Address       string
	Username      string
	Password      string
	Failed        bool
	Failures      int64
	Requests      int64
	AvgResponseMs float64
	LastUsedAt    time.Time
}
