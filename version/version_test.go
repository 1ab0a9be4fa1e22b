package version

import (
	"net/http/httptest"
	"testing"

	"github.com/ruteri/appinstance-provisioning-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatParse(t *testing.T) {
	token := Format(1712345678901234)
	assert.Equal(t, `W/"1712345678901234"`, token)

	set, err := Parse(token)
	require.NoError(t, err)
	assert.True(t, set.Contains(1712345678901234))
	assert.False(t, set.Contains(1712345678901235))
}

func TestParseMultipleTokens(t *testing.T) {
	set, err := Parse(`W/"10", "20" ,W/"10"`)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20}, set.Versions())
	assert.True(t, set.Contains(10))
	assert.True(t, set.Contains(20))
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("")
	assert.ErrorIs(t, err, interfaces.ErrPreconditionMissing)

	_, err = Parse("   ")
	assert.ErrorIs(t, err, interfaces.ErrPreconditionMissing)

	for _, header := range []string{"*", `W/10`, `"abc"`, `W/"-1"`, `"1", bogus`, `,`} {
		_, err := Parse(header)
		assert.ErrorIs(t, err, ErrMalformed, header)
		assert.ErrorIs(t, err, interfaces.ErrInvalidInput, header)
	}
}

func TestFromRequest(t *testing.T) {
	req := httptest.NewRequest("DELETE", "/", nil)
	_, err := FromRequest(req)
	assert.ErrorIs(t, err, interfaces.ErrPreconditionMissing)

	req.Header.Add("If-Match", Format(1))
	req.Header.Add("If-Match", Format(2))
	set, err := FromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, set.Versions())

	rec := httptest.NewRecorder()
	SetETag(rec, 3)
	assert.Equal(t, `W/"3"`, rec.Header().Get("ETag"))
}
