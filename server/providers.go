package server

import "github.com/buckneer/beastie-club/pkg/providers"

// Re-export provider interfaces/types from pkg/providers to keep a single source of truth.
type (
	GuestStore    = providers.GuestStore
	AccountStore  = providers.AccountStore
	SpinAuditor   = providers.SpinAuditor
	AdminNotifier = providers.AdminNotifier
	SpinEvent     = providers.SpinEvent
	TransferEvent = providers.TransferEvent
)
