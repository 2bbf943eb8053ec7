package config

import (
	"time"

	"github.com/kashguard/go-evidence/internal/util"
	"github.com/rs/zerolog"
)

type EchoServer struct {
	Debug                     bool
	ListenAddress             string
	EnableRecoverMiddleware   bool
	EnableRequestIDMiddleware bool
	EnableLoggerMiddleware    bool
	// Requests per second per client on the verification endpoint.
	VerifyRateLimit float64
	VerifyRateBurst int
}

type LoggerServer struct {
	Level              zerolog.Level
	RequestLevel       zerolog.Level
	PrettyPrintConsole bool
}

type Management struct {
	EnableMetrics bool
}

// Storage selects the blob backend once per process.
type Storage struct {
	Backend string // "localfs" | "s3"
	Bucket  string

	LocalRoot string

	S3Region       string
	S3Endpoint     string
	S3UsePathStyle bool

	OperationTimeout time.Duration
}

type Ledger struct {
	Namespace       string
	PacksNamespace  string
	WriteDailyIndex bool
}

type DeadLetter struct {
	Dir                 string
	RetentionDays       int
	HighVolumeLines     int
	GrowingLines        int
	GrowingArchiveCount int
	// Cleanup also removes the oldest archives until both caps hold; zero disables a cap.
	MaxArchiveBytes int64
	MaxArchiveLines int
}

type Rollup struct {
	MaxEntries int
	// AnchorMode is one of none, request, call, both.
	AnchorMode string
	AnchorURL  string
}

type Anchoring struct {
	WindowDays              int
	PendingTooLong          time.Duration
	CheckGaps               bool
	ManifestMissingSeverity string
	HashMismatchSeverity    string
}

type GC struct {
	Prefix         string
	MaxDelete      int
	MaxBytes       int64
	RequireConfirm bool
	BatchSize      int
}

type Keys struct {
	ApprovalTTL  time.Duration
	ExecutionTTL time.Duration
	PolicyFile   string
}

type Snapshot struct {
	DailySchedule  string
	WeeklySchedule string
	// EventsDSN points at the operational relational store. Empty disables
	// the relational counters and only ledger-derived counts are used.
	EventsDSN string
}

type Server struct {
	Echo       EchoServer
	Logger     LoggerServer
	Management Management
	Storage    Storage
	Ledger     Ledger
	DeadLetter DeadLetter
	Rollup     Rollup
	Anchoring  Anchoring
	GC         GC
	Keys       Keys
	Snapshot   Snapshot
}

// DefaultServiceConfigFromEnv returns the server config as parsed from environment variables
// and their respective defaults defined below.
// We don't expect that ENV_VARs change while we are running our application or our tests
// (and it would be a bad thing to do anyways with parallel testing).
// Do NOT use os.Setenv / os.Unsetenv in tests utilizing DefaultServiceConfigFromEnv()!
func DefaultServiceConfigFromEnv() Server {
	return Server{
		Echo: EchoServer{
			Debug:                     util.GetEnvAsBool("SERVER_ECHO_DEBUG", false),
			ListenAddress:             util.GetEnv("SERVER_ECHO_LISTEN_ADDRESS", ":8080"),
			EnableRecoverMiddleware:   util.GetEnvAsBool("SERVER_ECHO_ENABLE_RECOVER_MIDDLEWARE", true),
			EnableRequestIDMiddleware: util.GetEnvAsBool("SERVER_ECHO_ENABLE_REQUEST_ID_MIDDLEWARE", true),
			EnableLoggerMiddleware:    util.GetEnvAsBool("SERVER_ECHO_ENABLE_LOGGER_MIDDLEWARE", true),
			VerifyRateLimit:           float64(util.GetEnvAsInt("SERVER_ECHO_VERIFY_RATE_LIMIT", 10)),
			VerifyRateBurst:           util.GetEnvAsInt("SERVER_ECHO_VERIFY_RATE_BURST", 20),
		},
		Logger: LoggerServer{
			Level:              util.LogLevelFromString(util.GetEnv("SERVER_LOGGER_LEVEL", zerolog.DebugLevel.String())),
			RequestLevel:       util.LogLevelFromString(util.GetEnv("SERVER_LOGGER_REQUEST_LEVEL", zerolog.DebugLevel.String())),
			PrettyPrintConsole: util.GetEnvAsBool("SERVER_LOGGER_PRETTY_PRINT_CONSOLE", false),
		},
		Management: Management{
			EnableMetrics: util.GetEnvAsBool("SERVER_MANAGEMENT_ENABLE_METRICS", true),
		},
		Storage: Storage{
			Backend:          util.GetEnv("EVIDENCE_STORAGE_BACKEND", "localfs"),
			Bucket:           util.GetEnv("EVIDENCE_STORAGE_BUCKET", "evidence"),
			LocalRoot:        util.GetEnv("EVIDENCE_STORAGE_LOCAL_ROOT", "/var/lib/evidence"),
			S3Region:         util.GetEnv("EVIDENCE_STORAGE_S3_REGION", "eu-central-1"),
			S3Endpoint:       util.GetEnv("EVIDENCE_STORAGE_S3_ENDPOINT", ""),
			S3UsePathStyle:   util.GetEnvAsBool("EVIDENCE_STORAGE_S3_USE_PATH_STYLE", false),
			OperationTimeout: util.GetEnvAsDuration("EVIDENCE_STORAGE_OPERATION_TIMEOUT", 30*time.Second),
		},
		Ledger: Ledger{
			Namespace:       util.GetEnv("EVIDENCE_LEDGER_NAMESPACE", "ledger"),
			PacksNamespace:  util.GetEnv("EVIDENCE_LEDGER_PACKS_NAMESPACE", "packs"),
			WriteDailyIndex: util.GetEnvAsBool("EVIDENCE_LEDGER_WRITE_DAILY_INDEX", true),
		},
		DeadLetter: DeadLetter{
			Dir:                 util.GetEnv("EVIDENCE_DEAD_LETTER_DIR", "/var/lib/evidence/dead-letter"),
			RetentionDays:       util.GetEnvAsInt("EVIDENCE_DEAD_LETTER_RETENTION_DAYS", 90),
			HighVolumeLines:     util.GetEnvAsInt("EVIDENCE_DEAD_LETTER_HIGH_VOLUME_LINES", 100),
			GrowingLines:        util.GetEnvAsInt("EVIDENCE_DEAD_LETTER_GROWING_LINES", 50),
			GrowingArchiveCount: util.GetEnvAsInt("EVIDENCE_DEAD_LETTER_GROWING_ARCHIVES", 5),
			MaxArchiveBytes:     util.GetEnvAsInt64("EVIDENCE_DEAD_LETTER_MAX_ARCHIVE_BYTES", 256<<20),
			MaxArchiveLines:     util.GetEnvAsInt("EVIDENCE_DEAD_LETTER_MAX_ARCHIVE_LINES", 100000),
		},
		Rollup: Rollup{
			MaxEntries: util.GetEnvAsInt("EVIDENCE_ROLLUP_MAX_ENTRIES", 5000),
			AnchorMode: util.GetEnv("EVIDENCE_ROLLUP_ANCHOR_MODE", "none"),
			AnchorURL:  util.GetEnv("EVIDENCE_ROLLUP_ANCHOR_URL", ""),
		},
		Anchoring: Anchoring{
			WindowDays:              util.GetEnvAsInt("EVIDENCE_ANCHORING_WINDOW_DAYS", 30),
			PendingTooLong:          util.GetEnvAsDuration("EVIDENCE_ANCHORING_PENDING_TOO_LONG", 72*time.Hour),
			CheckGaps:               util.GetEnvAsBool("EVIDENCE_ANCHORING_CHECK_GAPS", false),
			ManifestMissingSeverity: util.GetEnv("EVIDENCE_ANCHORING_MANIFEST_MISSING_SEVERITY", "major"),
			HashMismatchSeverity:    util.GetEnv("EVIDENCE_ANCHORING_HASH_MISMATCH_SEVERITY", "major"),
		},
		GC: GC{
			Prefix:         util.GetEnv("EVIDENCE_GC_PREFIX", "pending/"),
			MaxDelete:      util.GetEnvAsInt("EVIDENCE_GC_MAX_DELETE", 1000),
			MaxBytes:       util.GetEnvAsInt64("EVIDENCE_GC_MAX_BYTES", 1<<30),
			RequireConfirm: util.GetEnvAsBool("EVIDENCE_GC_REQUIRE_CONFIRM", true),
			BatchSize:      util.GetEnvAsInt("EVIDENCE_GC_BATCH_SIZE", 100),
		},
		Keys: Keys{
			ApprovalTTL:  util.GetEnvAsDuration("EVIDENCE_KEYS_APPROVAL_TTL", 24*time.Hour),
			ExecutionTTL: util.GetEnvAsDuration("EVIDENCE_KEYS_EXECUTION_TTL", time.Hour),
			PolicyFile:   util.GetEnv("EVIDENCE_KEYS_POLICY_FILE", ""),
		},
		Snapshot: Snapshot{
			DailySchedule:  util.GetEnv("EVIDENCE_SNAPSHOT_DAILY_SCHEDULE", "0 0 * * *"),
			WeeklySchedule: util.GetEnv("EVIDENCE_SNAPSHOT_WEEKLY_SCHEDULE", "0 0 * * 1"),
			EventsDSN:      util.GetEnv("EVIDENCE_SNAPSHOT_EVENTS_DSN", ""),
		},
	}
}
