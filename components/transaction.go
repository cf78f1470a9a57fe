package components

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/relloyd/starpipe/logger"
	"github.com/relloyd/starpipe/rdbms/shared"
)

// execReplaceInTx runs clearStmt followed by fillStmts in one transaction so a table is replaced atomically.
// The rows affected by fillStmts are summed and returned.
func execReplaceInTx(ctx context.Context, log logger.Logger, db shared.Connector, name string, clearStmt string, fillStmts []string) (rowsAffected int64, err error) {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "error starting transaction")
	}
	rollbackRequired := true
	defer rollback(log, name, tx, &rollbackRequired)
	log.Debug(name, " executing: ", clearStmt)
	if _, err = tx.ExecContext(ctx, clearStmt); err != nil {
		return 0, errors.Wrapf(err, "error executing SQL '%v'", clearStmt)
	}
	for _, stmt := range fillStmts {
		log.Debug(name, " executing: ", stmt)
		res, err := tx.ExecContext(ctx, stmt)
		if err != nil {
			return 0, errors.Wrapf(err, "error executing SQL '%v'", stmt)
		}
		n, err := res.RowsAffected()
		if err != nil { // if the driver can't report the row count...
			log.Debug(name, " rows affected not available: ", err)
			continue
		}
		rowsAffected += n
	}
	// Commit changes.
	// If we don't get here the deferred func will rollback.
	if err = tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "error executing commit")
	}
	rollbackRequired = false
	log.Debug(name, " commit complete")
	return rowsAffected, nil
}

func rollback(log logger.Logger, name string, tx shared.Transacter, rollbackRequired *bool) {
	if *rollbackRequired { // if rollback is required...
		log.Debug(name, " deferred rollback")
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) { // if the driver had not already rolled back...
			log.Error(name, " error during rollback: ", err)
		}
	}
}
