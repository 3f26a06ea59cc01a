package config

import "time"

// Default values for the retrieval subsystems.
const (
	// DefaultMaxCharsPerChunk bounds chunk size for embedding. Structured
	// formats (JSON, XML) use half of this to avoid splitting deeply
	// nested structure mid-token.
	DefaultMaxCharsPerChunk = 1500

	// DefaultChunkOverlap is the overlap between consecutive chunks.
	// The chunker caps it at a quarter of the effective maximum.
	DefaultChunkOverlap = 200

	// DefaultMaxFileBytes is the largest file the indexer will read.
	DefaultMaxFileBytes = 1 << 20 // 1 MiB

	// DefaultProgressUpdateEvery is how many files are indexed between
	// progress snapshot updates.
	DefaultProgressUpdateEvery = 25

	// DefaultEmbedRatePerSec limits background embedding calls so bulk
	// indexing does not starve the serving path's model quota.
	DefaultEmbedRatePerSec = 5

	// DefaultWatchQueueSize bounds the file-system event channel.
	DefaultWatchQueueSize = 256

	DefaultVectorMaxResults  = 20
	DefaultKeywordMaxResults = 20
	DefaultHybridMaxResults  = 8

	// DefaultRankFusionK is the RRF constant: each result contributes
	// 1/(k+rank). Smaller k sharpens the weight of early ranks.
	DefaultRankFusionK = 60

	DefaultGateHistoryTurns = 3
	DefaultGateMaxChars     = 500
)

// ChunkingConfig configures the chunker.
type ChunkingConfig struct {
	MaxCharsPerChunk     int      `mapstructure:"max_chars_per_chunk"`
	ChunkOverlap         int      `mapstructure:"chunk_overlap"`
	StructuredExtensions []string `mapstructure:"structured_extensions"`
}

// IndexingConfig configures the indexer and file watcher.
type IndexingConfig struct {
	MaxFileBytes        int64               `mapstructure:"max_file_bytes"`
	SupportedExtensions []string            `mapstructure:"supported_extensions"`
	BinaryExtensions    []string            `mapstructure:"binary_extensions"`
	ExcludeFileNames    []string            `mapstructure:"exclude_file_names"`
	CommonExcludes      []string            `mapstructure:"common_excludes"`
	ProjectExcludes     map[string][]string `mapstructure:"project_excludes"`
	ProgressUpdateEvery int                 `mapstructure:"progress_update_every"`
	EmbedRatePerSec     float64             `mapstructure:"embed_rate_per_sec"`
	WatchQueueSize      int                 `mapstructure:"watch_queue_size"`
}

// SearchConfig configures the two sub-searches and rank fusion.
type SearchConfig struct {
	VectorMaxResults  int     `mapstructure:"vector_max_results"`
	VectorMinScore    float32 `mapstructure:"vector_min_score"`
	KeywordMaxResults int     `mapstructure:"keyword_max_results"`
	HybridMaxResults  int     `mapstructure:"hybrid_max_results"`
	RankFusionK       int     `mapstructure:"rank_fusion_k"`
}

// GateConfig configures the retrieval intent gate.
type GateConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	HistoryTurns int           `mapstructure:"history_turns"`
	MaxChars     int           `mapstructure:"max_chars"`
}

// defaultStructuredExtensions are formats whose chunk budget is halved.
var defaultStructuredExtensions = []string{".json", ".xml", ".yaml", ".yml", ".toml"}

// defaultSupportedExtensions are the file types indexed by default.
var defaultSupportedExtensions = []string{
	".txt", ".md", ".markdown", ".rst",
	".go", ".py", ".js", ".ts", ".jsx", ".tsx",
	".java", ".kt", ".c", ".cpp", ".h", ".hpp",
	".rs", ".rb", ".php", ".sh", ".swift",
	".yaml", ".yml", ".json", ".xml", ".toml",
	".html", ".css", ".sql", ".properties", ".gradle",
	".pdf",
}

// defaultBinaryExtensions are skipped without reading content.
var defaultBinaryExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".bmp", ".ico", ".webp", ".svg",
	".zip", ".tar", ".gz", ".bz2", ".xz", ".7z", ".rar",
	".exe", ".dll", ".so", ".dylib", ".bin", ".o", ".a",
	".class", ".jar", ".war",
	".mp3", ".mp4", ".avi", ".mov", ".wav",
	".woff", ".woff2", ".ttf", ".otf", ".eot",
	".db", ".sqlite", ".parquet",
}

// defaultExcludeFileNames are generated files never worth indexing.
var defaultExcludeFileNames = []string{
	"package-lock.json", "yarn.lock", "pnpm-lock.yaml",
	"go.sum", "Cargo.lock", "Gemfile.lock", "poetry.lock",
	"gradle-wrapper.properties",
}

// defaultCommonExcludes are directory names skipped in every project.
var defaultCommonExcludes = []string{
	"node_modules", "vendor", "target", "build", "dist", "out",
	"__pycache__", "coverage", "tmp",
}

// defaultProjectExcludes maps a root marker file to extra excluded
// directories for that project type.
var defaultProjectExcludes = map[string][]string{
	"go.mod":           {"vendor", "bin"},
	"package.json":     {"node_modules", "dist", "build", ".next", ".nuxt"},
	"Cargo.toml":       {"target"},
	"pom.xml":          {"target", ".mvn"},
	"build.gradle":     {"build", ".gradle"},
	"build.gradle.kts": {"build", ".gradle"},
	"pyproject.toml":   {".venv", "venv", "__pycache__", ".tox", ".mypy_cache"},
	"requirements.txt": {".venv", "venv", "__pycache__"},
}
