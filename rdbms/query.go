package rdbms

import (
	"context"
	"fmt"

	"github.com/relloyd/starpipe/logger"
	"github.com/relloyd/starpipe/rdbms/shared"
)

// SqlQuery runs sqltext and sends the column names followed by each row to i.
func SqlQuery(ctx context.Context, log logger.Logger, db shared.Connector, sqltext string, i shared.SqlResultHandler) error {
	rows, err := db.QueryContext(ctx, sqltext)
	if err != nil {
		return fmt.Errorf("error during database query using SQL: '%v': %w", sqltext, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	log.Debug("query returned columns: ", cols)
	// Scan the values dynamically.
	lenCols := len(cols)
	scanPtrs := make([]interface{}, lenCols)
	scanVals := make([]interface{}, lenCols)
	for idx := 0; idx < lenCols; idx++ { // for each column...
		scanPtrs[idx] = &scanVals[idx] // save the value.
	}
	// Build and send the header.
	header := make([]interface{}, lenCols)
	for idx := range cols {
		header[idx] = cols[idx]
	}
	if err = i.HandleHeader(header); err != nil {
		return err
	}
	// Send the rows via callback interface.
	for rows.Next() {
		if err := ctx.Err(); err != nil { // quit if asked to...
			return err
		}
		if err := rows.Scan(scanPtrs...); err != nil {
			return fmt.Errorf("error scanning row: %w", err)
		}
		// Make a new row.
		row := make([]interface{}, lenCols)
		copy(row, scanVals)
		// Send the row.
		if err = i.HandleRow(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// QueryInt64 runs a query that returns a single integer, such as a row count.
func QueryInt64(ctx context.Context, db shared.Connector, sqltext string) (int64, error) {
	var n int64
	if err := db.QueryRowContext(ctx, sqltext).Scan(&n); err != nil {
		return 0, fmt.Errorf("error during database query using SQL: '%v': %w", sqltext, err)
	}
	return n, nil
}
