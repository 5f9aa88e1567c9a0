package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath       string `long:"db-path" env:"DB_PATH" default:"./data/trendradar.db" description:"Path to the SQLite database file"`
	SnapshotPath string `long:"snapshot-path" env:"SNAPSHOT_PATH" default:"./config/snapshot.yml" description:"Path to the shared configuration snapshot file"`
	OutputDir    string `long:"output-dir" env:"OUTPUT_DIR" default:"./output" description:"Directory for generated report artifacts"`

	// Application configuration
	Port             string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey     string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	FetchRounds      int    `long:"fetch-rounds" env:"FETCH_ROUNDS" default:"1" description:"Number of fetch rounds per run"`
	RoundInterval    int    `long:"round-interval" env:"ROUND_INTERVAL" default:"0" description:"Pause between fetch rounds in seconds"`
	FetchTimeout     int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"15" description:"Per-platform fetch timeout in seconds"`
	FetchConcurrency int    `long:"fetch-concurrency" env:"FETCH_CONCURRENCY" default:"4" description:"Maximum concurrent platform fetches within a round"`
	HistoryRuns      int    `long:"history-runs" env:"HISTORY_RUNS" default:"30" description:"Number of recent runs retained in run history per signature"`
	ExecutionRecords int    `long:"execution-records" env:"EXECUTION_RECORDS" default:"20" description:"Number of execution records retained per task"`
	HotlistAPIBase   string `long:"hotlist-api" env:"HOTLIST_API" default:"https://newsnow.busiyi.world/api/s" description:"Base URL of the hot-list aggregation API"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"TrendRadar/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, Asia/Shanghai)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:           raw.DBPath,
		SnapshotPath:     raw.SnapshotPath,
		OutputDir:        raw.OutputDir,
		Port:             raw.Port,
		APIAccessKey:     raw.APIAccessKey,
		FetchRounds:      raw.FetchRounds,
		RoundInterval:    raw.RoundInterval,
		FetchTimeout:     raw.FetchTimeout,
		FetchConcurrency: raw.FetchConcurrency,
		HistoryRuns:      raw.HistoryRuns,
		ExecutionRecords: raw.ExecutionRecords,
		HotlistAPIBase:   raw.HotlistAPIBase,
		UserAgent:        raw.UserAgent,
		Timezone:         raw.Timezone,
		Debug:            raw.Debug,
		Version:          GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
