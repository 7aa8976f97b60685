package cmd

import (
	"io/ioutil"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/memoio/go-voicemint/lib/types"
)

func TestParseTraits(t *testing.T) {
	m, err := parseTraits([]string{"tone=warm", " pitch = low "})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"tone": "warm", "pitch": "low"}, m)

	m, err = parseTraits(nil)
	require.NoError(t, err)
	require.Nil(t, m)

	_, err = parseTraits([]string{"=x"})
	require.Error(t, err)
	_, err = parseTraits([]string{"novalue"})
	require.Error(t, err)
}

func TestReadBatch(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "batch.json")
	require.NoError(t, ioutil.WriteFile(p, []byte(`[
		{"title": "Morning Narration", "duration": 120, "cultural_tags": ["Professional"],
		 "voice_characteristics": {"tone": "warm"}, "audio_url": "ipfs://a",
		 "royalty_percent": 2.5, "price": "0.1"}
	]`), 0644))

	entries, err := readBatch(p)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	rec := entries[0].recording()
	require.Equal(t, "Morning Narration", rec.Title)
	require.Equal(t, 120.0, rec.DurationSeconds)
	require.Equal(t, "ipfs://a", rec.AudioReference)
	require.Equal(t, "warm", rec.Characteristics["tone"])
	require.Equal(t, 2.5, entries[0].Royalty)

	require.NoError(t, ioutil.WriteFile(p, []byte(`[]`), 0644))
	_, err = readBatch(p)
	require.Error(t, err)
}

func TestStatusRow(t *testing.T) {
	res := &types.PublicationResult{
		ID:         "0123456789abcdef0123",
		Title:      "t",
		State:      types.StateFailed,
		Completed:  types.StateMinted,
		FailedStep: types.StepSetRoyalty,
		TokenID:    types.NewTokenID(big.NewInt(7)),
		UpdatedAt:  time.Unix(0, 0).UTC(),
	}

	row := newStatusRow(res)
	require.Equal(t, "0123456789ab", row.ID)
	require.Equal(t, "Failed@setRoyalty", row.State)
	require.Equal(t, "7", row.Token)
	require.Equal(t, "-", row.Listing)
	require.Equal(t, "1970-01-01T00:00:00Z", row.Updated)
}

func TestBatchLimit(t *testing.T) {
	n, err := batchLimit(4)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	for _, bad := range []int{0, -1} {
		_, err := batchLimit(bad)
		require.Error(t, err)
	}
}
