package config

const (
	defaultBaseURL    = "https://secure.parkonect.com"
	defaultLoginPath  = "/Admin/Login.aspx"
	defaultReportPath = "/Admin/Reporting.aspx?gid=1239&rpt=27"

	defaultLoginTimeout      = 10
	defaultNavigationTimeout = 30
	defaultReportTimeout     = 15

	defaultBatchSize           = 25
	defaultFetchAttempts       = 3
	defaultBatchRetryLimit     = 1
	defaultRunAttempts         = 3
	defaultRequestDelayMS      = 500
	defaultBatchDelayMS        = 2000
	defaultRecoveryDelayMS     = 2000
	defaultCompletionThreshold = 0.95

	defaultMaxSessionMinutes = 45
	defaultMaxOperations     = 300
	defaultMaxMemoryMiB      = 1536

	defaultWorkbookPath = "parking_reports.xlsx"
	defaultStateDir     = "~/.local/share/parkingreport"
	defaultLogDir       = "~/.local/share/parkingreport/logs"

	defaultSMTPHost       = "smtp.gmail.com"
	defaultSMTPPort       = 587
	defaultNotifyTimeout  = 10
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	defaultRetentionDays  = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Portal: Portal{
			BaseURL:           defaultBaseURL,
			LoginPath:         defaultLoginPath,
			ReportPath:        defaultReportPath,
			Headless:          true,
			LoginTimeout:      defaultLoginTimeout,
			NavigationTimeout: defaultNavigationTimeout,
			ReportTimeout:     defaultReportTimeout,
		},
		Run: Run{
			BatchSize:           defaultBatchSize,
			FetchAttempts:       defaultFetchAttempts,
			BatchRetryLimit:     defaultBatchRetryLimit,
			RunAttempts:         defaultRunAttempts,
			RequestDelayMS:      defaultRequestDelayMS,
			BatchDelayMS:        defaultBatchDelayMS,
			RecoveryDelayMS:     defaultRecoveryDelayMS,
			CompletionThreshold: defaultCompletionThreshold,
		},
		Health: Health{
			MaxSessionMinutes: defaultMaxSessionMinutes,
			MaxOperations:     defaultMaxOperations,
			MaxMemoryMiB:      defaultMaxMemoryMiB,
		},
		Output: Output{
			WorkbookPath: defaultWorkbookPath,
			StateDir:     defaultStateDir,
			LogDir:       defaultLogDir,
		},
		Notifications: Notifications{
			SMTPHost:       defaultSMTPHost,
			SMTPPort:       defaultSMTPPort,
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultRetentionDays,
		},
	}
}
