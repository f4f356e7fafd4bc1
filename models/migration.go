package models

import (
	"github.com/contaflux/portal_backend/config"
)

func AutoMigrate() error {
	return config.GetDB().AutoMigrate(
		&User{},
		&ClientDocument{},
		&ChartOfAccounts{},
		&LedgerEntry{},
		&MonthClosure{},
		&ClosureAudit{},
		&AlignmentRetry{},
		&Notification{},
	)
}
