package config

const (
	defaultOutputDir        = "~/.local/share/streamsync/m3u-files"
	defaultBackupDir        = "~/.local/share/streamsync/backups"
	defaultLogDir           = "~/.local/share/streamsync/logs"
	defaultStateDir         = "~/.local/share/streamsync/state"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30
	defaultUserAgent        = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	defaultWindowWidth      = 390
	defaultWindowHeight     = 844
	defaultPageTimeout      = 30
	defaultWaitSeconds      = 20
	defaultSettleSeconds    = 3
	defaultCaptureAttempts  = 3
	defaultRetryDelay       = 2
	defaultProbeTimeout     = 10
	defaultMaxWorkers       = 4
	defaultPrimaryLabel     = "高清優先"
	defaultBackupLabel      = "備用"
	defaultAllFile          = "all.m3u"
	defaultFetchTimeout     = 20
	defaultSectionTitle     = "台灣頻道（自動更新）"
	defaultMasterPath       = "TWTV.m3u"
	defaultBackupRetention  = 5
	defaultGitBinary        = "git"
	defaultGitRemote        = "origin"
	defaultGitBranch        = "main"
	defaultCommitMessage    = "Auto update"
	defaultPublishTimeout   = 120
	defaultIntervalMinutes  = 15
	defaultNotifyTimeout    = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			BackupDir: defaultBackupDir,
			LogDir:    defaultLogDir,
			StateDir:  defaultStateDir,
		},
		Capture: Capture{
			Headless:      true,
			UserAgent:     defaultUserAgent,
			WindowWidth:   defaultWindowWidth,
			WindowHeight:  defaultWindowHeight,
			PageTimeout:   defaultPageTimeout,
			WaitSeconds:   defaultWaitSeconds,
			SettleSeconds: defaultSettleSeconds,
			Attempts:      defaultCaptureAttempts,
			RetryDelay:    defaultRetryDelay,
			PlaySelectors: []string{".vjs-big-play-button", "[aria-label*=play i]", "button.play", "button"},
			PlayTexts:     []string{"播放", "Play"},
			Workers:       1,
			ProbeTimeout:  defaultProbeTimeout,
		},
		Selector: Selector{
			ManifestSuffixes: []string{".m3u8"},
			AdKeywords:       []string{"ad", "ads", "advert", "adserver", "doubleclick", "/ad/", "imasdk"},
			BitrateKeywords:  []string{"avc1", "hevc", "bitrate"},
			QualityKeywords:  []string{"hd", "high", "4000000", "3000000"},
		},
		Playlist: Playlist{
			PrimaryLabel: defaultPrimaryLabel,
			BackupLabel:  defaultBackupLabel,
			AllFile:      defaultAllFile,
		},
		Merge: Merge{
			LocalPath:    defaultMasterPath,
			FetchTimeout: defaultFetchTimeout,
			SectionTitle: defaultSectionTitle,
		},
		Backup: Backup{
			Retention: defaultBackupRetention,
		},
		Publish: Publish{
			GitBinary:     defaultGitBinary,
			Remote:        defaultGitRemote,
			Branch:        defaultGitBranch,
			Paths:         []string{"."},
			CommitMessage: defaultCommitMessage,
			Timeout:       defaultPublishTimeout,
		},
		Schedule: Schedule{
			IntervalMinutes: defaultIntervalMinutes,
		},
		Notifications: Notifications{
			RequestTimeout:  defaultNotifyTimeout,
			CycleFailures:   true,
			PublishWarnings: true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
