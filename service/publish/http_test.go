package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memoio/go-voicemint/lib/types"
)

func TestHandler(t *testing.T) {
	w, _, _ := newTestWorkflow(t)

	res, err := w.Publish(context.Background(), morningNarration(), defaultTerms)
	require.NoError(t, err)

	srv := httptest.NewServer(NewHandler(w, map[string]http.Handler{
		"/ping": http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
			rw.WriteHeader(http.StatusNoContent)
		}),
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/publications")
	require.NoError(t, err)
	var all []types.PublicationResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&all))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, all, 1)
	require.Equal(t, res.ID, all[0].ID)
	require.Equal(t, types.StateListed, all[0].State)

	resp, err = http.Get(srv.URL + "/publications/" + res.ID)
	require.NoError(t, err)
	var one types.PublicationResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&one))
	resp.Body.Close()
	require.Equal(t, res.TokenID.String(), one.TokenID.String())
	require.Len(t, one.Transactions, 3)

	resp, err = http.Get(srv.URL + "/publications/nope")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/publications", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/ping")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}
