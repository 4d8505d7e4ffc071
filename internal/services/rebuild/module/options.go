package module

import (
	"github.com/oscar-project/ungoliant/internal/platform/config"
)

// Options holds configuration settings for the rebuild module
type Options struct {
	// SrcDir is the intermediate output root the pipeline wrote to
	SrcDir          string   `json:"src_dir" validate:"required"`
	CorpusDir       string   `json:"corpus_dir" validate:"required"`
	Codec           string   `json:"codec"`
	MinScore        *float64 `json:"min_score"`
	MaxScore        *float64 `json:"max_score"`
	DropAnnotations []string `json:"drop_annotations" validate:"dive,oneof=tiny noisy header footer"`
	MinBytes        int      `json:"min_bytes" validate:"min=0"`

	// near duplicate reporting over stored LSH digests; a zero window disables it
	NearDupWindow   int `json:"near_dup_window" validate:"min=0"`
	NearDupDistance int `json:"near_dup_distance" validate:"min=0"`
}

// FromConfig reads CORE_REBUILD_*; the source root is the shards output dir
func FromConfig(cfg config.Conf) Options {
	rb := cfg.Prefix("CORE_REBUILD_")
	return Options{
		SrcDir:          cfg.Prefix("CORE_SHARDS_").MayString("OUT_DIR", "./out"),
		CorpusDir:       rb.MayString("CORPUS_DIR", "./corpus"),
		Codec:           rb.MayString("CODEC", "gzip"),
		MinScore:        rb.MayFloatPtr("MIN_SCORE"),
		MaxScore:        rb.MayFloatPtr("MAX_SCORE"),
		DropAnnotations: rb.MayCSV("DROP_ANNOTATIONS", nil),
		MinBytes:        rb.MayInt("MIN_BYTES", 0),

		NearDupWindow:   rb.MayInt("NEAR_DUP_WINDOW", 0),
		NearDupDistance: rb.MayInt("NEAR_DUP_DISTANCE", 30),
	}
}
