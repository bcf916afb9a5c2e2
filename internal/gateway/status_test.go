package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aidin1998/instapay/pkg/errors"
)

func TestDecodeStatusStringEncodedData(t *testing.T) {
	raw := `{"data":"{\"STATUS\":\"COMPLETED\",\"UTRNUMBER\":\"UTR123\",\"URN\":\"URN9\",\"UNIQUEID\":\"U1\",\"RESPONSE\":\"SUCCESS\"}"}`
	res := DecodeStatus([]byte(raw))
	require.True(t, res.Ok())
	assert.Equal(t, "COMPLETED", res.Parsed.Status)
	assert.Equal(t, "UTR123", res.Parsed.UTR)
	assert.Equal(t, "URN9", res.Parsed.URN)
	assert.Equal(t, "U1", res.Parsed.UniqueID)
	assert.Equal(t, "SUCCESS", res.Parsed.Response)
}

func TestDecodeStatusDoublyEncodedData(t *testing.T) {
	raw := `{"data":"\"{\\\"STATUS\\\":\\\"PENDING FOR APPROVAL\\\"}\""}`
	res := DecodeStatus([]byte(raw))
	require.True(t, res.Ok())
	assert.Equal(t, "PENDING FOR APPROVAL", res.Parsed.Status)
	assert.Empty(t, res.Parsed.UTR)
}

func TestDecodeStatusObjectData(t *testing.T) {
	res := DecodeStatus([]byte(`{"data":{"STATUS":"FAILED","UTRNUMBER":null}}`))
	require.True(t, res.Ok())
	assert.Equal(t, "FAILED", res.Parsed.Status)
	assert.Empty(t, res.Parsed.UTR)
}

func TestDecodeStatusQuotedEnvelope(t *testing.T) {
	res := DecodeStatus([]byte(`"{\"data\":\"{\\\"STATUS\\\":\\\"SUCCESS\\\",\\\"UTRNUMBER\\\":12345}\"}"`))
	require.True(t, res.Ok())
	assert.Equal(t, "SUCCESS", res.Parsed.Status)
	assert.Equal(t, "12345", res.Parsed.UTR)
}

func TestDecodeStatusTopLevelFields(t *testing.T) {
	res := DecodeStatus([]byte(`{"STATUS":"COMPLETED","UTRNUMBER":"UTR1"}`))
	require.True(t, res.Ok())
	assert.Equal(t, "UTR1", res.Parsed.UTR)
}

func TestDecodeStatusMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":          ``,
		"not json":       `<html>bad gateway</html>`,
		"no data":        `{"message":"ok"}`,
		"data not json":  `{"data":"{STATUS: COMPLETED"}`,
		"data no status": `{"data":"{\"UTRNUMBER\":\"U\"}"}`,
		"data array":     `{"data":[1,2]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			res := DecodeStatus([]byte(raw))
			assert.False(t, res.Ok())
			assert.Nil(t, res.Parsed)
			assert.True(t, errors.Is(res.Err, errors.Parse))
		})
	}
}
