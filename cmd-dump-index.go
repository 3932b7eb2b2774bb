package main

import (
	"fmt"
	"os"

	"github.com/rpcpool/bagz-index/indexdump"
	"github.com/urfave/cli/v2"
)

func newCmd_Dump() *cli.Command {
	return &cli.Command{
		Name:        "dump",
		Usage:       "print a human-readable summary of an index's contents",
		ArgsUsage:   "<index>",
		Description: "Walk an index and print each bucket (HashBucket) or posting slot (Trigram) to stdout.",
		Before: func(c *cli.Context) error {
			return nil
		},
		Action: func(c *cli.Context) error {
			path := c.Args().Get(0)
			if path == "" {
				return fmt.Errorf("dump requires an index path")
			}
			if err := indexdump.Dump(os.Stdout, path); err != nil {
				return cli.Exit(err, 1)
			}
			return nil
		},
	}
}
