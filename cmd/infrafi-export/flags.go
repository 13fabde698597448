package main

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"infrafi/export"
)

const (
	SubgraphKey = "subgraph"
	DaysKey     = "days"
	OutKey      = "out"
	FormatKey   = "format"
	TimeoutKey  = "timeout"
	LogLevelKey = "log-level"

	subgraphEnv = "INFRAFI_SUBGRAPH_URL"
)

func AddFlags(flags *pflag.FlagSet) {
	flags.String(SubgraphKey, os.Getenv(subgraphEnv), "GraphQL endpoint of the lending subgraph (defaults to $"+subgraphEnv+")")
	flags.Int(DaysKey, 30, "Number of days of history to export")
	flags.String(OutKey, "exports", "Directory receiving the run output")
	flags.String(FormatKey, string(export.FormatCSV), "Output format: csv, parquet or both")
	flags.Duration(TimeoutKey, 30*time.Second, "Timeout for each subgraph request")
	flags.String(LogLevelKey, "info", "Log level: debug, info, warn or error")
}

type Config struct {
	Subgraph string
	Days     int
	Out      string
	Format   export.Format
	Timeout  time.Duration
	LogLevel string
}

func ParseFlags(flags *pflag.FlagSet) (*Config, error) {
	subgraphURL, err := flags.GetString(SubgraphKey)
	if err != nil {
		return nil, err
	}
	subgraphURL = strings.TrimSpace(subgraphURL)
	if subgraphURL == "" {
		return nil, errors.New("--subgraph is required")
	}

	days, err := flags.GetInt(DaysKey)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		return nil, errors.New("--days must be positive")
	}

	out, err := flags.GetString(OutKey)
	if err != nil {
		return nil, err
	}

	formatName, err := flags.GetString(FormatKey)
	if err != nil {
		return nil, err
	}
	format, err := export.ParseFormat(formatName)
	if err != nil {
		return nil, err
	}

	timeout, err := flags.GetDuration(TimeoutKey)
	if err != nil {
		return nil, err
	}

	level, err := flags.GetString(LogLevelKey)
	if err != nil {
		return nil, err
	}

	return &Config{
		Subgraph: subgraphURL,
		Days:     days,
		Out:      out,
		Format:   format,
		Timeout:  timeout,
		LogLevel: level,
	}, nil
}
