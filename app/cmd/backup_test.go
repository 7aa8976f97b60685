package cmd

import (
	"bytes"
	"io/ioutil"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

func TestDecompressed(t *testing.T) {
	plain := bytes.Repeat([]byte("voicemint"), 100)

	r, err := decompressed(bytes.NewReader(plain))
	require.NoError(t, err)
	got, err := ioutil.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, plain, got)

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = enc.Write(plain)
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.True(t, bytes.HasPrefix(buf.Bytes(), zstdMagic))

	r, err = decompressed(&buf)
	require.NoError(t, err)
	got, err = ioutil.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, plain, got)

	r, err = decompressed(bytes.NewReader(nil))
	require.NoError(t, err)
	got, err = ioutil.ReadAll(r)
	require.NoError(t, err)
	require.Empty(t, got)
}
