package actions

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/relloyd/starpipe/logger"
	"github.com/relloyd/starpipe/rdbms"
	"github.com/relloyd/starpipe/workflow"
)

type QueryConfig struct {
	WarehouseOptions
	Query       string `errorTxt:"SQL query" mandatory:"yes"`
	PrintHeader bool
	DryRun      bool
}

type sqlHandler struct {
	printHeader bool
	w           *csv.Writer
}

func toStrings(i []interface{}) []string {
	retval := make([]string, len(i))
	for idx, v := range i {
		switch x := v.(type) {
		case nil:
			retval[idx] = ""
		case []byte:
			retval[idx] = string(x)
		case time.Time:
			retval[idx] = x.Format(time.RFC3339Nano)
		default:
			retval[idx] = fmt.Sprintf("%v", x)
		}
	}
	return retval
}

func (s *sqlHandler) HandleHeader(i []interface{}) error {
	if !s.printHeader {
		return nil
	}
	if err := s.w.Write(toStrings(i)); err != nil {
		return fmt.Errorf("error outputting SQL header: %v", err)
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *sqlHandler) HandleRow(i []interface{}) error {
	if err := s.w.Write(toStrings(i)); err != nil {
		return fmt.Errorf("error outputting SQL row: %v", err)
	}
	s.w.Flush()
	return s.w.Error()
}

// RunQuery executes cfg.Query against the warehouse and prints the results as CSV.
func RunQuery(cfg *QueryConfig) error {
	if cfg.DryRun {
		_, err := fmt.Fprintln(output(cfg.Output), cfg.Query)
		return err
	}
	log := cfg.newLogger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := workflow.CleanupHandlerDefault(log, cancel)
	defer stop()
	return runQuery(ctx, log, cfg, output(cfg.Output))
}

func runQuery(ctx context.Context, log logger.Logger, cfg *QueryConfig, w io.Writer) error {
	if cfg.Query == "" {
		return fmt.Errorf("please supply a SQL query")
	}
	db, err := openConnection(ctx, log, &cfg.WarehouseOptions)
	if err != nil {
		return err
	}
	defer db.Close()
	h := sqlHandler{printHeader: cfg.PrintHeader, w: csv.NewWriter(w)}
	return rdbms.SqlQuery(ctx, log, db, cfg.Query, &h)
}
