package canonicalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJCSSortsKeysAndStripsWhitespace(t *testing.T) {
	v := map[string]interface{}{
		"z_field": "value",
		"a_field": 42,
		"nested": map[string]interface{}{
			"second": 2,
			"first":  1,
		},
	}

	out, err := JCS(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a_field":42,"nested":{"first":1,"second":2},"z_field":"value"}`, string(out))
}

func TestJCSOrderIndependent(t *testing.T) {
	a := map[string]interface{}{
		"cert_id":    "backup_001",
		"cert_type":  "backup",
		"created_at": "2023-01-01T00:00:00Z",
	}
	b := map[string]interface{}{
		"created_at": "2023-01-01T00:00:00Z",
		"cert_type":  "backup",
		"cert_id":    "backup_001",
	}

	ca, err := JCS(a)
	require.NoError(t, err)
	cb, err := JCS(b)
	require.NoError(t, err)
	assert.Equal(t, ca, cb)
	assert.Equal(t, `{"cert_id":"backup_001","cert_type":"backup","created_at":"2023-01-01T00:00:00Z"}`, string(ca))
}

func TestJCSIdempotent(t *testing.T) {
	v := map[string]interface{}{
		"commands": []interface{}{
			map[string]interface{}{"cmd": "nvme sanitize /dev/nvme0n1", "exit": 0, "ms": 45780},
		},
		"result": "PASS",
	}

	first, err := JCS(v)
	require.NoError(t, err)
	second, err := JCS(v)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestJCSNoHTMLEscaping(t *testing.T) {
	out, err := JCS(map[string]interface{}{"action_mapping": "Sanitize → Crypto Erase & <PURGE>"})
	require.NoError(t, err)
	assert.Contains(t, string(out), "&")
	assert.Contains(t, string(out), "<PURGE>")
	assert.NotContains(t, string(out), `\u003c`)
}

func TestCanonicalHashStable(t *testing.T) {
	h1, err := CanonicalHash(map[string]interface{}{"a": 1, "b": 2})
	require.NoError(t, err)
	h2, err := CanonicalHash(map[string]interface{}{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestUnsignedBytesExcludesSignature(t *testing.T) {
	cert := map[string]interface{}{
		"cert_id": "wipe_123",
		"signature": map[string]interface{}{
			"alg": "Ed25519",
			"sig": "YWJj",
		},
	}

	out, err := UnsignedBytes(cert)
	require.NoError(t, err)
	assert.Equal(t, `{"cert_id":"wipe_123"}`, string(out))

	// Input must not be mutated.
	assert.Contains(t, cert, "signature")
}

func TestUnsignedBytesMatchesCertWithoutSignature(t *testing.T) {
	signed := map[string]interface{}{
		"cert_id":   "c1",
		"cert_type": "wipe",
		"signature": map[string]interface{}{"alg": "Ed25519"},
	}
	unsigned := map[string]interface{}{
		"cert_type": "wipe",
		"cert_id":   "c1",
	}

	a, err := UnsignedBytes(signed)
	require.NoError(t, err)
	b, err := JCS(unsigned)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
