package wireshape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Name string `json:"name"`
}

func TestDecodeArrayOrEnvelope_BareArray(t *testing.T) {
	items, ok, _ := DecodeArrayOrEnvelope[item]([]byte(`[{"name":"a"},{"name":"b"}]`))
	require.True(t, ok)
	assert.Len(t, items, 2)
}

func TestDecodeArrayOrEnvelope_DataEnvelope(t *testing.T) {
	items, ok, _ := DecodeArrayOrEnvelope[item]([]byte(`{"data":[{"name":"a"}]}`))
	require.True(t, ok)
	assert.Len(t, items, 1)
}

func TestDecodeArrayOrEnvelope_MismatchReportsKeys(t *testing.T) {
	items, ok, mismatch := DecodeArrayOrEnvelope[item]([]byte(`{"error":"bad request","code":400}`))
	assert.False(t, ok)
	assert.Nil(t, items)
	assert.Equal(t, "object", mismatch.PayloadType)
	assert.Contains(t, mismatch.PayloadKeys, "error")
}

func TestDecodeArrayOrEnvelope_ScalarMismatch(t *testing.T) {
	_, ok, mismatch := DecodeArrayOrEnvelope[item]([]byte(`"just a string"`))
	assert.False(t, ok)
	assert.Equal(t, "scalar", mismatch.PayloadType)
}
