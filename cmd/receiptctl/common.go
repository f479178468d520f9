package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/commandlayer/runtime-core/pkg/config"
	"github.com/commandlayer/runtime-core/pkg/ens"
	"github.com/commandlayer/runtime-core/pkg/observability"
	"github.com/commandlayer/runtime-core/pkg/receipt"
)

// configFlag is the -config flag every subcommand accepts.
type configFlag struct {
	path string
}

func (c *configFlag) register(fs *flag.FlagSet) {
	fs.StringVar(&c.path, "config", "", "YAML config file; environment variables still override it")
}

// load reads and validates the configuration and installs the JSON logger
// on stderr as the slog default.
func (c *configFlag) load(stderr io.Writer) (*config.Config, error) {
	cfg := config.Load()
	if c.path != "" {
		var err error
		if cfg, err = config.LoadFile(c.path); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	slog.SetDefault(observability.NewLogger(cfg.LogLevel, stderr))
	return cfg, nil
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func readReceipt(path string) (*receipt.Receipt, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, fmt.Errorf("read receipt: %w", err)
	}
	return receipt.Parse(data)
}

// readJSON decodes any JSON document with numbers kept as json.Number.
func readJSON(path string) (any, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return v, nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// openENS serves TXT records from a YAML file, behind the Redis cache when
// one is configured. The returned func releases the cache connection.
func openENS(cfg *config.Config, recordsPath string) (ens.TextSource, func(), error) {
	recs, err := ens.LoadStaticRecords(recordsPath)
	if err != nil {
		return nil, nil, err
	}
	src, err := ens.SourceFor(recs)
	if err != nil {
		return nil, nil, err
	}
	if cfg.RedisAddr == "" {
		return src, func() {}, nil
	}
	rdb := ens.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	slog.Debug("ens: caching TXT lookups", "redis", cfg.RedisAddr, "ttl", cfg.ENSCacheTTL)
	return ens.NewCachedSource(src, rdb, cfg.ENSCacheTTL), func() { _ = rdb.Close() }, nil
}

func fail(stderr io.Writer, err error) int {
	_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	return 2
}
