package cfg

type Cfg struct {
	// Storage configuration
	DBPath       string
	SnapshotPath string
	OutputDir    string

	// Application configuration
	Port             string
	APIAccessKey     string
	FetchRounds      int
	RoundInterval    int
	FetchTimeout     int
	FetchConcurrency int
	HistoryRuns      int
	ExecutionRecords int
	HotlistAPIBase   string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
