package configtypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("3s")
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, d.ToDuration())

	d, err = ParseDuration("3000")
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, d.ToDuration())

	_, err = ParseDuration("soon")
	require.Error(t, err)
}

func TestDurationMarshal(t *testing.T) {
	d := Duration(1500 * time.Millisecond)
	b, err := d.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `"1.5s"`, string(b))
	text, err := d.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "1.5s", string(text))
}
