// Command pindex is the CLI front end for the partition index: create,
// add, persist, query, inspect, and benchmark a cuckoo-fingerprint
// partition index from the shell. Its flag-parsing and config/logging
// bootstrap sequence mirrors cmd/hypercache/main.go's startup skeleton,
// adapted from a long-running cache node to a one-shot subcommand tool.
package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strconv"

	"partitionindex/internal/bulkstat"
	"partitionindex/internal/index"
	"partitionindex/internal/obslog"
	"partitionindex/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "create":
		err = runCreate(args)
	case "add":
		err = runAdd(args)
	case "persist":
		err = runPersist(args)
	case "query":
		err = runQuery(args)
	case "remove":
		err = runRemove(args)
	case "stats":
		err = runStats(args)
	case "bench":
		err = runBench(args)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "pindex %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: pindex <create|add|persist|query|remove|stats|bench> [flags]")
}

func newLogger(cfgPath string) *obslog.Logger {
	cfg, err := config.Load(cfgPath)
	level := obslog.INFO
	if err == nil {
		switch cfg.Logging.Level {
		case "debug":
			level = obslog.DEBUG
		case "warn":
			level = obslog.WARN
		case "error":
			level = obslog.ERROR
		}
	}
	log := obslog.New(obslog.Config{Level: level, BufferSize: 256})
	obslog.SetGlobal(log)
	return log
}

func runCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	root := fs.String("root", "./pindex-data", "storage root directory")
	buckets := fs.Uint64("buckets", 1024, "number of global buckets")
	cfgPath := fs.String("config", "configs/pindex.yaml", "path to configuration file")
	fs.Parse(args)

	log := newLogger(*cfgPath)
	defer log.Close()
	ctx := obslog.WithCorrelationID(context.Background(), obslog.NewCorrelationID())

	idx, err := index.Create(*buckets, *root)
	if err != nil {
		return err
	}
	if err := idx.Persist(); err != nil {
		return err
	}
	log.Info(ctx, obslog.ComponentMain, obslog.ActionStart, "index created", map[string]interface{}{
		"root": *root, "buckets": *buckets,
	})
	fmt.Printf("created index at %s with %d buckets\n", *root, *buckets)
	return nil
}

func runAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	root := fs.String("root", "./pindex-data", "storage root directory")
	partition := fs.String("partition", "", "partition identifier")
	keysFile := fs.String("keys", "", "file of newline-separated uint64 keys; - for stdin")
	persist := fs.Bool("persist", false, "persist immediately after adding")
	fs.Parse(args)

	if *partition == "" || *keysFile == "" {
		return fmt.Errorf("both -partition and -keys are required")
	}

	idx, err := index.Open(*root)
	if err != nil {
		return err
	}

	keys, err := readKeys(*keysFile)
	if err != nil {
		return err
	}

	idx.Add(*partition, keys)
	if *persist {
		if err := idx.Persist(); err != nil {
			return err
		}
	}
	fmt.Printf("added partition %q (%d keys)\n", *partition, len(keys))
	return nil
}

func runPersist(args []string) error {
	fs := flag.NewFlagSet("persist", flag.ExitOnError)
	root := fs.String("root", "./pindex-data", "storage root directory")
	fs.Parse(args)

	idx, err := index.Open(*root)
	if err != nil {
		return err
	}
	if err := idx.Persist(); err != nil {
		return err
	}
	fmt.Println("persisted")
	return nil
}

func runQuery(args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	root := fs.String("root", "./pindex-data", "storage root directory")
	key := fs.String("key", "", "key to query (uint64)")
	fs.Parse(args)

	k, err := strconv.ParseUint(*key, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid -key: %w", err)
	}

	idx, err := index.Open(*root)
	if err != nil {
		return err
	}
	hits, err := idx.Query(k)
	if err != nil {
		return err
	}
	for _, p := range hits {
		fmt.Println(p)
	}
	return nil
}

func runRemove(args []string) error {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	root := fs.String("root", "./pindex-data", "storage root directory")
	partition := fs.String("partition", "", "partition identifier to remove")
	persist := fs.Bool("persist", false, "persist immediately after removing")
	fs.Parse(args)

	idx, err := index.Open(*root)
	if err != nil {
		return err
	}
	idx.Remove(*partition)
	if *persist {
		if err := idx.Persist(); err != nil {
			return err
		}
	}
	fmt.Printf("removed partition %q\n", *partition)
	return nil
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	root := fs.String("root", "./pindex-data", "storage root directory")
	fs.Parse(args)

	idx, err := index.Open(*root)
	if err != nil {
		return err
	}

	w := csv.NewWriter(os.Stdout)
	defer w.Flush()
	w.Write([]string{"partition", "width", "active", "elements"})
	for _, p := range idx.Partitions() {
		w.Write([]string{p.Partition, strconv.Itoa(int(p.Width)), strconv.FormatBool(p.Active), strconv.FormatUint(p.Elements, 10)})
	}
	return nil
}

func runBench(args []string) error {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	cfgPath := fs.String("config", "configs/pindex.yaml", "path to configuration file")
	fs.Parse(args)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}

	w := csv.NewWriter(os.Stdout)
	defer w.Flush()
	w.Write(bulkstat.CSVHeader)

	seed := int64(1)
	for _, q := range cfg.Benchmark.Queries {
		for _, p := range cfg.Benchmark.Partitions {
			for _, epp := range cfg.Benchmark.ElementsPerPartition {
				shape := bulkstat.Shape{
					Queries:              q,
					Partitions:           p,
					ElementsPerPartition: epp,
					Buckets:              cfg.Index.NumBuckets,
					Parallelism:          cfg.Benchmark.Parallelism,
				}
				result := bulkstat.Run(shape, seed)
				w.Write(result.Row())
				seed++
			}
		}
	}
	return nil
}

func readKeys(path string) ([]uint64, error) {
	var f *os.File
	if path == "-" {
		f = os.Stdin
	} else {
		var err error
		f, err = os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open keys file: %w", err)
		}
		defer f.Close()
	}

	var keys []uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		k, err := strconv.ParseUint(line, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse key %q: %w", line, err)
		}
		keys = append(keys, k)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}
