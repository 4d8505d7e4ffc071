package validate

import (
	"testing"

	perr "github.com/oscar-project/ungoliant/internal/platform/errors"
	"github.com/oscar-project/ungoliant/internal/platform/testkit"
)

type opts struct {
	Workers   int     `json:"workers" validate:"min=1,max=512"`
	Threshold float64 `json:"threshold" validate:"gte=0,lte=1"`
	Lang      string  `json:"lang" validate:"omitempty,langtag"`
}

func TestStruct(t *testing.T) {
	if err := Struct(opts{Workers: 4, Threshold: 0.8, Lang: "fr"}); err != nil {
		t.Fatalf("valid opts: %v", err)
	}

	err := Struct(opts{Workers: 0, Threshold: 0.8})
	if !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
	e, _ := perr.As(err)
	if e.Field() != "workers" {
		t.Fatalf("field = %q", e.Field())
	}
	testkit.MustContain(t, err.Error(), "workers must be at least 1")

	err = Struct(opts{Workers: 1, Lang: "not a tag!"})
	testkit.MustContain(t, err.Error(), "lang must be a BCP 47 language tag")
}

func TestStruct_NonStructIsMisuse(t *testing.T) {
	if err := Struct(42); !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("misuse should surface as validation error, got %v", err)
	}
}
