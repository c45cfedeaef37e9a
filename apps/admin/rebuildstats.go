package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) rebuildStats() error {
	n, err := cli.learningSvc.RebuildAllStats(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "rebuilt the stats of %d learners\n", n)
	return nil
}
