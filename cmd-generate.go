package main

import (
	"time"

	"github.com/rpcpool/bagz-index/indexbuild"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

func newCmd_Generate() *cli.Command {
	var (
		inputPath     string
		outputPath    string
		protoFile     string
		recordType    string
		keyFields     cli.StringSlice
		excludeFields cli.StringSlice
		trigramMode   bool
		tmpDir        string
		shardLimit    int
	)
	return &cli.Command{
		Name:        "generate",
		Usage:       "build a HashBucket or Trigram index from a bag file of records",
		Description: "Stream records out of an input bag file, project key-field patterns through a schema, and build a sharded HashBucket (default) or Trigram (--trigram) index.",
		Before: func(c *cli.Context) error {
			return nil
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Usage:       "input bag file path, one record per entry",
				Destination: &inputPath,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "output index path",
				Destination: &outputPath,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "proto-file",
				Usage:       "JSON schema file describing the record type",
				Destination: &protoFile,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "record-type",
				Usage:       "record type name declared in the schema file",
				Destination: &recordType,
				Required:    true,
			},
			&cli.StringSliceFlag{
				Name:        "key-field",
				Usage:       "field-path pattern selecting keyable values (repeatable)",
				Destination: &keyFields,
			},
			&cli.StringSliceFlag{
				Name:        "exclude-field",
				Usage:       "field-path pattern excluded from the key-field selection (repeatable)",
				Destination: &excludeFields,
			},
			&cli.BoolFlag{
				Name:        "trigram",
				Usage:       "build a Trigram index instead of a HashBucket index",
				Destination: &trigramMode,
			},
			&cli.StringFlag{
				Name:        "tmp-dir",
				Usage:       "accepted but not used: shard spill files are written under the system temporary directory",
				Destination: &tmpDir,
			},
			&cli.IntFlag{
				Name:        "shard-limit",
				Usage:       "number of records per shard before flushing",
				Destination: &shardLimit,
			},
		},
		Action: func(c *cli.Context) error {
			startedAt := time.Now()
			defer func() {
				klog.Infof("generate finished in %s", time.Since(startedAt))
			}()
			klog.Infof("generating index from %s into %s (trigram=%v)", inputPath, outputPath, trigramMode)

			err := indexbuild.GenerateIndex(indexbuild.GenerateConfig{
				InputBagzPath:        inputPath,
				OutputBagzPath:       outputPath,
				ProtoFile:            protoFile,
				RecordTypeName:       recordType,
				KeyFieldPatterns:     keyFields.Value(),
				ExcludeFieldPatterns: excludeFields.Value(),
				Trigram:              trigramMode,
				TmpDir:               tmpDir,
				ShardLimit:           shardLimit,
			})
			if err != nil {
				return cli.Exit(err, 1)
			}
			klog.Info("generate complete")
			return nil
		},
	}
}
