package repomanager

import (
	"context"
	"database/sql"

	"github.com/DmitriyEfimov15/mobcon-server/internal/dbx"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/repositories/accounts"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/repositories/emailchanges"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/repositories/resets"
	"github.com/DmitriyEfimov15/mobcon-server/internal/server/repositories/sessions"
)

// RepositoryManager vends repositories bound to a DBTX, which lets services
// run the same repository code inside or outside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Resets(db dbx.DBTX) resets.Repository
	EmailChanges(db dbx.DBTX) emailchanges.Repository
}
