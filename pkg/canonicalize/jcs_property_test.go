//go:build property
// +build property

package canonicalize

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestCanonicalizationDeterminism verifies JCS(obj) == JCS(obj) for any
// generated string map, and that insertion order has no effect.
func TestCanonicalizationDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("canonical form is deterministic", prop.ForAll(
		func(keys []string, values []string) bool {
			obj := make(map[string]interface{})
			for i := 0; i < len(keys) && i < len(values); i++ {
				if keys[i] != "" {
					obj[keys[i]] = values[i]
				}
			}

			a, err1 := JCS(obj)
			b, err2 := JCS(obj)
			if err1 != nil || err2 != nil {
				return err1 != nil && err2 != nil
			}
			return string(a) == string(b)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("hash is order independent", prop.ForAll(
		func(a, b, c string) bool {
			x := map[string]interface{}{"a": a, "b": b, "c": c}
			y := map[string]interface{}{"c": c, "a": a, "b": b}
			hx, err1 := CanonicalHash(x)
			hy, err2 := CanonicalHash(y)
			return err1 == nil && err2 == nil && hx == hy
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
