package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dgnsrekt/pendsync/internal/flow"
)

// Config holds everything one pipeline run and the controller need.
type Config struct {
	// Portal
	PortalBaseURL        string
	PortalTripPath       string
	PortalTaskCenterPath string
	LoginID              string
	Password             string
	ExportIndex          int

	// Browser
	Headless       bool
	ExecPath       string
	RemoteCDPURL   string
	NoSandbox      bool
	ViewportWidth  int
	ViewportHeight int

	// Files
	DownloadDir      string
	ArtifactDir      string
	ArtifactPrefix   string
	ArtifactExt      string
	ArtifactTimezone string
	CSVDelimiter     rune

	// Spreadsheet
	SheetURL        string
	SheetName       string
	CredentialsFile string
	SheetValueInput string

	Timeouts Timeouts

	// Diagnostics and sinks
	SnapshotDir            string
	SnapshotBeforeDownload bool
	HistoryDir             string
	MetricsTextfile        string
	NTFYEndpoint           string

	// Controller
	BindAddr         string
	PortCandidates   []int
	PortAutoFallback bool

	LogLevel      string
	LogFile       string
	SelectorsFile string

	Selectors Selectors
}

// Timeouts bounds every wait in a run.
type Timeouts struct {
	LoginForm     time.Duration
	LoginSettle   time.Duration
	LoginProgress time.Duration
	OverlayWait   time.Duration
	Navigation    time.Duration
	ExportReady   time.Duration
	ExportSettle  time.Duration
	Listing       time.Duration
	Download      time.Duration
	Run           time.Duration
	NetworkQuiet  time.Duration
	PollInterval  time.Duration
	DismissSettle time.Duration
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		PortalBaseURL:        getEnvOrDefault("PORTAL_BASE_URL", "https://spx.shopee.com.br/"),
		PortalTripPath:       getEnvOrDefault("PORTAL_TRIP_PATH", "#/hubLinehaulTrips/trip"),
		PortalTaskCenterPath: getEnvOrDefault("PORTAL_TASK_CENTER_PATH", "#/taskCenter/exportTaskCenter"),
		LoginID:              os.Getenv("PORTAL_LOGIN_ID"),
		Password:             os.Getenv("PORTAL_PASSWORD"),
		ExportIndex:          getEnvIntOrDefault("PORTAL_EXPORT_INDEX", 0),

		Headless:     getEnvBoolOrDefault("BROWSER_HEADLESS", true),
		ExecPath:     os.Getenv("BROWSER_EXEC_PATH"),
		RemoteCDPURL: os.Getenv("BROWSER_CDP_URL"),
		NoSandbox:    getEnvBoolOrDefault("BROWSER_NO_SANDBOX", false),

		DownloadDir:      getEnvOrDefault("DOWNLOAD_DIR", "/tmp/pendsync/staging"),
		ArtifactDir:      getEnvOrDefault("ARTIFACT_DIR", "/tmp"),
		ArtifactPrefix:   getEnvOrDefault("ARTIFACT_PREFIX", "PEND"),
		ArtifactExt:      getEnvOrDefault("ARTIFACT_EXT", "csv"),
		ArtifactTimezone: getEnvOrDefault("ARTIFACT_TIMEZONE", "Local"),

		SheetURL:        os.Getenv("SHEET_URL"),
		SheetName:       getEnvOrDefault("SHEET_NAME", "Base Pending"),
		CredentialsFile: getEnvOrDefault("SHEET_CREDENTIALS_FILE", "hxh.json"),
		SheetValueInput: getEnvOrDefault("SHEET_VALUE_INPUT", "USER_ENTERED"),

		Timeouts: Timeouts{
			LoginForm:     getEnvDurationOrDefault("LOGIN_FORM_TIMEOUT", 10*time.Second),
			LoginSettle:   getEnvDurationOrDefault("LOGIN_SETTLE_TIMEOUT", 40*time.Second),
			LoginProgress: getEnvDurationOrDefault("LOGIN_PROGRESS_TIMEOUT", 15*time.Second),
			OverlayWait:   getEnvDurationOrDefault("OVERLAY_WAIT_TIMEOUT", 10*time.Second),
			Navigation:    getEnvDurationOrDefault("NAVIGATION_TIMEOUT", 30*time.Second),
			ExportReady:   getEnvDurationOrDefault("EXPORT_READY_TIMEOUT", 15*time.Second),
			ExportSettle:  getEnvDurationOrDefault("EXPORT_SETTLE_DELAY", 10*time.Second),
			Listing:       getEnvDurationOrDefault("LISTING_TIMEOUT", 20*time.Second),
			Download:      getEnvDurationOrDefault("DOWNLOAD_TIMEOUT", 60*time.Second),
			Run:           getEnvDurationOrDefault("RUN_TIMEOUT", 10*time.Minute),
			NetworkQuiet:  getEnvDurationOrDefault("NETWORK_QUIET", 500*time.Millisecond),
			PollInterval:  getEnvDurationOrDefault("POLL_INTERVAL", 250*time.Millisecond),
			DismissSettle: getEnvDurationOrDefault("DISMISS_SETTLE", 500*time.Millisecond),
		},

		SnapshotDir:            getEnvOrDefault("SNAPSHOT_DIR", "./snapshots"),
		SnapshotBeforeDownload: getEnvBoolOrDefault("SNAPSHOT_BEFORE_DOWNLOAD", true),
		HistoryDir:             getEnvOrDefault("HISTORY_DIR", "./data/history"),
		MetricsTextfile:        os.Getenv("METRICS_TEXTFILE"),
		NTFYEndpoint:           os.Getenv("NTFY_ENDPOINT"),

		BindAddr:         getEnvOrDefault("CONTROLLER_BIND_ADDR", "127.0.0.1:8189"),
		PortAutoFallback: getEnvBoolOrDefault("CONTROLLER_PORT_AUTO_FALLBACK", true),

		LogLevel:      strings.ToLower(getEnvOrDefault("PENDSYNC_LOG_LEVEL", "info")),
		LogFile:       getEnvOrDefault("PENDSYNC_LOG_FILE", "logs/pendsync.log"),
		SelectorsFile: os.Getenv("PENDSYNC_SELECTORS_FILE"),

		Selectors: DefaultSelectors(),
	}

	w, h, err := parseViewport(getEnvOrDefault("BROWSER_VIEWPORT", "1366x768"))
	if err != nil {
		return nil, err
	}
	cfg.ViewportWidth, cfg.ViewportHeight = w, h

	delim := getEnvOrDefault("CSV_DELIMITER", ",")
	if delim == `\t` {
		delim = "\t"
	}
	r := []rune(delim)
	if len(r) != 1 {
		return nil, fmt.Errorf("config: CSV_DELIMITER must be a single character, got %q", delim)
	}
	cfg.CSVDelimiter = r[0]

	candidates, err := parsePortCandidates(os.Getenv("CONTROLLER_PORT_CANDIDATES"))
	if err != nil {
		return nil, err
	}
	cfg.PortCandidates = candidates

	if cfg.SelectorsFile != "" {
		sel, err := LoadSelectors(cfg.SelectorsFile, cfg.Selectors)
		if err != nil {
			return nil, err
		}
		cfg.Selectors = sel
	}

	if cfg.Timeouts.PollInterval < 50*time.Millisecond {
		cfg.Timeouts.PollInterval = 50 * time.Millisecond
	}
	return cfg, nil
}

// Validate reports settings a full browser run cannot start without as a
// VALIDATION error.
func (c *Config) Validate() error {
	var missing []string
	if c.LoginID == "" || c.Password == "" {
		missing = append(missing, "PORTAL_LOGIN_ID/PORTAL_PASSWORD")
	}
	if c.SheetURL == "" {
		missing = append(missing, "SHEET_URL")
	}
	if c.ArtifactPrefix == "" {
		missing = append(missing, "ARTIFACT_PREFIX")
	}
	if len(missing) > 0 {
		return flow.NewError(flow.CodeValidation, "config: missing "+strings.Join(missing, ", "), nil)
	}
	return nil
}

// Location resolves ArtifactTimezone.
func (c *Config) Location() (*time.Location, error) {
	if c.ArtifactTimezone == "" || strings.EqualFold(c.ArtifactTimezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.ArtifactTimezone)
	if err != nil {
		return nil, fmt.Errorf("config: ARTIFACT_TIMEZONE: %w", err)
	}
	return loc, nil
}

// TripURL is the page holding the export button.
func (c *Config) TripURL() string { return joinPortal(c.PortalBaseURL, c.PortalTripPath) }

// TaskCenterURL is the export task listing.
func (c *Config) TaskCenterURL() string {
	return joinPortal(c.PortalBaseURL, c.PortalTaskCenterPath)
}

func joinPortal(base, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + strings.TrimPrefix(path, "/")
}

func parseViewport(v string) (int, int, error) {
	parts := strings.SplitN(strings.ToLower(strings.TrimSpace(v)), "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("config: BROWSER_VIEWPORT must look like 1366x768, got %q", v)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("config: BROWSER_VIEWPORT width %q", parts[0])
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("config: BROWSER_VIEWPORT height %q", parts[1])
	}
	return w, h, nil
}

func parsePortCandidates(v string) ([]int, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	var out []int
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return nil, fmt.Errorf("config: CONTROLLER_PORT_CANDIDATES: invalid port %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDurationOrDefault accepts Go durations ("40s") or bare milliseconds.
func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil && d > 0 {
		return d
	}
	if ms, err := strconv.Atoi(val); err == nil && ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultVal
}
