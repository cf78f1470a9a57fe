package actions

import (
	"fmt"
	"io"

	"github.com/relloyd/starpipe/catalog"
	"github.com/relloyd/starpipe/workflow"
)

type DagConfig struct {
	GraphFile string
	Format    string
	Output    io.Writer
}

// RunDag validates the workflow graph and prints it as YAML or JSON.
func RunDag(cfg *DagConfig) error {
	cat := catalog.Default()
	g, err := loadGraph(cfg.GraphFile, cat)
	if err != nil {
		return err
	}
	format := cfg.Format
	if format == "" {
		format = workflow.FormatYaml
	}
	b, err := g.Marshal(format)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(output(cfg.Output), string(b))
	return err
}
