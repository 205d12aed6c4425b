package main

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_run(t *testing.T) {
	t.Run("default length", func(t *testing.T) {
		var out bytes.Buffer

		err := run(&out, rand.Reader, nil)

		require.NoError(t, err)
		require.Len(t, strings.TrimSpace(out.String()), 64)
	})

	t.Run("custom length as env", func(t *testing.T) {
		var out bytes.Buffer

		err := run(&out, bytes.NewReader(bytes.Repeat([]byte{0xab}, 48)), []string{"-n", "48", "--env"})

		require.NoError(t, err)
		require.Equal(t, "SECRET_KEY="+strings.Repeat("ab", 48)+"\n", out.String())
	})

	t.Run("too short", func(t *testing.T) {
		err := run(&bytes.Buffer{}, rand.Reader, []string{"--bytes", "8"})

		require.Error(t, err)
	})

	t.Run("random source exhausted", func(t *testing.T) {
		err := run(&bytes.Buffer{}, bytes.NewReader([]byte{1, 2, 3}), nil)

		require.Error(t, err)
	})
}
