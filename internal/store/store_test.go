package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreDrivers(t *testing.T) {
	for _, driver := range []string{DriverBolt, DriverSQLite, DriverMemory} {
		t.Run(driver, func(t *testing.T) {
			s, err := Open(driver, t.TempDir())
			require.NoError(t, err)
			defer s.Close()

			_, ok, err := s.Load("missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Save("catalog", []byte(`{"items":{}}`)))
			require.NoError(t, s.Save("catalog", []byte(`{"items":{"i-1":{}}}`)))

			blob, ok, err := s.Load("catalog")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, `{"items":{"i-1":{}}}`, string(blob))
		})
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	for _, driver := range []string{DriverBolt, DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			dir := t.TempDir()

			s, err := Open(driver, dir)
			require.NoError(t, err)
			require.NoError(t, s.Save("mappings", []byte(`{"tt1":"i-9"}`)))
			require.NoError(t, s.Close())

			s, err = Open(driver, dir)
			require.NoError(t, err)
			defer s.Close()

			blob, ok, err := s.Load("mappings")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, `{"tt1":"i-9"}`, string(blob))
		})
	}
}

func TestBoltStoreReturnsCopies(t *testing.T) {
	s, err := NewBoltStore("")
	require.NoError(t, err)

	in := []byte("abc")
	require.NoError(t, s.Save("k", in))
	in[0] = 'x'

	out, ok, err := s.Load("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", string(out))
}

func TestClosedStore(t *testing.T) {
	s, err := NewBoltStore("")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Save("k", nil), ErrClosed)
	_, _, err = s.Load("k")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("redis", t.TempDir())
	assert.Error(t, err)
}
