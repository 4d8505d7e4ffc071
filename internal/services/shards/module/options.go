package module

import (
	"github.com/oscar-project/ungoliant/internal/platform/config"
)

// Options holds configuration settings for the shards module
type Options struct {
	// line classifier
	LIDModelPath   string  `json:"lid_model_path"`
	LIDMinChars    int     `json:"lid_min_chars" validate:"min=0"`
	LIDThreshold   float64 `json:"lid_threshold" validate:"gte=0,lte=1"`
	LIDScriptFirst bool    `json:"lid_script_first"`

	// quality/domain filter
	BlocklistRoot   string   `json:"blocklist"`
	Categories      []string `json:"categories"`
	QualityManifest string   `json:"quality_models"`
	QualityCache    int      `json:"quality_cache" validate:"min=0"`
	DropNoisyTiny   bool     `json:"drop_noisy_tiny"`
	Annotate        bool     `json:"annotate"`

	// processor and output
	OutDir         string `json:"out_dir" validate:"required"`
	MinLineChars   int    `json:"min_line_chars" validate:"min=0"`
	AbsorbMaxLines int    `json:"absorb_max_lines" validate:"min=0"`
	AbsorbMaxChars int    `json:"absorb_max_chars" validate:"min=1"`
	SplitBytes     int64  `json:"split_size" validate:"min=0"`
	SplitDocs      int    `json:"split_docs" validate:"min=0"`
	Codec          string `json:"codec"`
	KeepHeaders    bool   `json:"keep_headers"`
	LSH            bool   `json:"lsh"`

	// multilingual records
	MultiMode     string  `json:"multi_mode" validate:"omitempty,oneof=off ratio strict"`
	MultiMinLines int     `json:"multi_min_lines" validate:"min=0"`
	MultiMaxLangs int     `json:"multi_max_langs" validate:"min=0"`
	MultiRatio    float64 `json:"multi_ratio" validate:"min=0"`
}

// FromConfig extracts Options from the given config.Conf
func FromConfig(cfg config.Conf) Options {
	lc := cfg.Prefix("CORE_LID_")
	fc := cfg.Prefix("CORE_FILTER_")
	sc := cfg.Prefix("CORE_SHARDS_")
	mc := sc.Prefix("MULTI_")
	return Options{
		LIDModelPath:   lc.MayString("MODEL_PATH", ""),
		LIDMinChars:    lc.MayInt("MIN_CHARS", 20),
		LIDThreshold:   lc.MayFloat64("THRESHOLD", 0.8),
		LIDScriptFirst: lc.MayBool("SCRIPT_FIRST", false),

		BlocklistRoot:   fc.MayString("BLOCKLIST", ""),
		Categories:      fc.MayCSV("CATEGORIES", nil),
		QualityManifest: fc.MayString("QUALITY_MODELS", ""),
		QualityCache:    fc.MayInt("QUALITY_CACHE", 0),
		DropNoisyTiny:   fc.MayBool("DROP_NOISY_TINY", true),
		Annotate:        fc.MayBool("ANNOTATE", true),

		OutDir:         sc.MayString("OUT_DIR", "./out"),
		MinLineChars:   sc.MayInt("MIN_LINE_CHARS", 20),
		AbsorbMaxLines: sc.MayInt("ABSORB_MAX_LINES", 2),
		AbsorbMaxChars: sc.MayInt("ABSORB_MAX_CHARS", 100),
		SplitBytes:     sc.MayBytes("SPLIT_SIZE", 500_000_000),
		SplitDocs:      sc.MayInt("SPLIT_DOCS", 0),
		Codec:          sc.MayEnum("CODEC", "gzip", "gzip", "zstd", "none"),
		KeepHeaders:    sc.MayBool("KEEP_HEADERS", false),
		LSH:            sc.MayBool("LSH", true),

		MultiMode:     mc.MayEnum("MODE", "off", "off", "ratio", "strict"),
		MultiMinLines: mc.MayInt("MIN_LINES", 10),
		MultiMaxLangs: mc.MayInt("MAX_LANGS", 5),
		MultiRatio:    mc.MayFloat64("RATIO", 4),
	}
}
