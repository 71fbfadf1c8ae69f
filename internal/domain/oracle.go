package domain

import "time"

// OracleStatus is an oracle's last observed health.
type OracleStatus string

const (
	OracleOK   OracleStatus = "ok"
	OracleDown OracleStatus = "down"
)

// OracleHealth is the in-memory health + fee-quote record for one oracle
// (spec.md §3, §4.6). RelayerFeeS/Q are non-negative integers.
type OracleHealth struct {
	URL         string
	Status      OracleStatus
	Timestamp   time.Time
	RelayerFeeS int64
	RelayerFeeQ int64
}
