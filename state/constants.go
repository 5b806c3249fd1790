package state

import "time"

var (
	AccountingDelay    = time.Second * 5
	ExitSelectionDelay = time.Second * 30
	// TickTimeout bounds a single accounting or exit selection run
	TickTimeout  = time.Second * 4
	PersistDelay = time.Second * 5

	// AnomalyLogTTL suppresses repeated warnings about the same unresolved counter entry
	AnomalyLogTTL = time.Minute * 5

	// LedgerBuffer is the number of updates the ledger channel can hold before dropping
	LedgerBuffer = 1024

	DefaultName      = "tollmesh"
	DefaultBabelAddr = "[::1]:6872"
	DefaultSetPrefix = "tollmesh"
)

// Default config paths, overridable by the CLI
var (
	SettingsPath = "/etc/tollmesh/settings.yaml"
)
