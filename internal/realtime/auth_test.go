package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTAuthenticator(t *testing.T) {
	a := NewJWTAuthenticator("secret", "social-feed")

	tok, err := a.Issue(42, time.Minute)
	require.NoError(t, err)
	id, err := a.Authenticate(tok)
	require.NoError(t, err)
	assert.EqualValues(t, 42, id)

	_, err = a.Authenticate("")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	other := NewJWTAuthenticator("other", "social-feed")
	forged, err := other.Issue(42, time.Minute)
	require.NoError(t, err)
	_, err = a.Authenticate(forged)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	expired, err := a.Issue(42, -time.Minute)
	require.NoError(t, err)
	_, err = a.Authenticate(expired)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	wrongIssuer, err := NewJWTAuthenticator("secret", "elsewhere").Issue(42, time.Minute)
	require.NoError(t, err)
	_, err = a.Authenticate(wrongIssuer)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
