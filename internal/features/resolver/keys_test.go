package resolver

import (
	"testing"

	common_models "go-mis/internal/common/models"
)

func TestKeyGenerators(t *testing.T) {
	t.Run("auto defers to the destination", func(t *testing.T) {
		gen, err := NewKeyGenerator(common_models.PKStrategy{Mode: common_models.PKAuto}, 0)
		if err != nil {
			t.Fatal(err)
		}
		if gen.Next() != nil {
			t.Fatal("auto strategy should yield nil keys")
		}
	})

	t.Run("uuid yields distinct keys", func(t *testing.T) {
		gen, err := NewKeyGenerator(common_models.PKStrategy{Mode: common_models.PKUUID}, 0)
		if err != nil {
			t.Fatal(err)
		}
		a, b := gen.Next().(string), gen.Next().(string)
		if a == b || len(a) != 36 {
			t.Fatalf("unexpected uuids %q %q", a, b)
		}
	})

	t.Run("max_plus_one counts up from the seed", func(t *testing.T) {
		gen, err := NewKeyGenerator(common_models.PKStrategy{Mode: common_models.PKMaxPlusOne}, 41)
		if err != nil {
			t.Fatal(err)
		}
		for _, want := range []int64{42, 43, 44} {
			if got := gen.Next().(int64); got != want {
				t.Fatalf("got %d, want %d", got, want)
			}
		}
	})

	t.Run("pattern zero-pads after the prefix", func(t *testing.T) {
		gen, err := NewKeyGenerator(common_models.PKStrategy{
			Mode: common_models.PKPattern, Prefix: "BUY-", Width: 5,
		}, 7)
		if err != nil {
			t.Fatal(err)
		}
		if got := gen.Next().(string); got != "BUY-00008" {
			t.Fatalf("got %q", got)
		}
		if got := gen.Next().(string); got != "BUY-00009" {
			t.Fatalf("got %q", got)
		}
	})

	t.Run("pattern without prefix is rejected", func(t *testing.T) {
		if _, err := NewKeyGenerator(common_models.PKStrategy{Mode: common_models.PKPattern}, 0); err == nil {
			t.Fatal("expected an error")
		}
	})
}
