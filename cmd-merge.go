package main

import (
	"fmt"
	"time"

	"github.com/rpcpool/bagz-index/indexconfig"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

func newCmd_Merge() *cli.Command {
	var outputPath string
	return &cli.Command{
		Name:        "merge",
		Usage:       "merge one or more indices sharing an identical config into one output index",
		ArgsUsage:   "<in...>",
		Description: "Merge one or more HashBucket or Trigram index files into a single output index. All inputs must share an identical descriptor.",
		Before: func(c *cli.Context) error {
			return nil
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "output index path",
				Destination: &outputPath,
				Required:    true,
			},
		},
		Action: func(c *cli.Context) error {
			inputs := c.Args().Slice()
			if len(inputs) == 0 {
				return fmt.Errorf("merge requires at least one input index path")
			}

			startedAt := time.Now()
			defer func() {
				klog.Infof("merge finished in %s", time.Since(startedAt))
			}()
			klog.Infof("merging %d index(es) into %s", len(inputs), outputPath)

			if err := indexconfig.MergeIndices(inputs, outputPath); err != nil {
				return cli.Exit(err, 1)
			}
			klog.Info("merge complete")
			return nil
		},
	}
}
