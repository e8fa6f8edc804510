package push

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/echotree/echotree/cmd"
	"github.com/echotree/echotree/cmd/util"
	"github.com/echotree/echotree/pkg/fanout"
	"github.com/echotree/echotree/pkg/server"
	"github.com/echotree/echotree/pkg/storage"
	"github.com/echotree/echotree/pkg/storage/memory"
	"github.com/echotree/echotree/pkg/storage/storagewrappers"
	"github.com/echotree/echotree/pkg/wordtree"
)

func newIngestServer(t *testing.T) (*server.Publisher, *httptest.Server) {
	t.Helper()

	ds := memory.New()
	t.Cleanup(ds.Close)
	require.NoError(t, ds.WriteFollowers(context.Background(), []storage.Row{
		{Word: "ant", Follower: "hill", Count: 2},
	}))

	p := server.NewPublisher(fanout.NewHub(), wordtree.NewBuilder(storagewrappers.NewFollowerCache(ds)))
	t.Cleanup(p.Close)

	srv := httptest.NewServer(server.NewIngestHandler(p))
	t.Cleanup(srv.Close)

	return p, srv
}

func TestClientSubmitWord(t *testing.T) {
	p, srv := newIngestServer(t)
	client := NewClient(srv.URL+"/", 0)

	result, err := client.SubmitWord(context.Background(), "ant")
	require.NoError(t, err)
	require.Equal(t, server.Result{Outcome: server.OutcomePublished, Seq: 1}, result)
	require.Equal(t, "hill", gjson.Get(p.Current().Data, "followWordObjs.0.word").String())

	_, err = client.SubmitWord(context.Background(), " ")
	require.ErrorContains(t, err, "invalid_word")
	require.ErrorContains(t, err, "status 400")
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"outcome":"published","seq":7}`))
	}))
	t.Cleanup(srv.Close)

	result, err := NewClient(srv.URL, 3).SubmitWord(context.Background(), "ant")
	require.NoError(t, err)
	require.Equal(t, server.Result{Outcome: server.OutcomePublished, Seq: 7}, result)
	require.Equal(t, int32(3), calls.Load())
}

func TestPushCommand(t *testing.T) {
	p, srv := newIngestServer(t)

	t.Run("words", func(t *testing.T) {
		util.PrepareTempConfigDir(t)

		var out bytes.Buffer
		root := cmd.NewRootCommand()
		root.AddCommand(NewPushCommand())
		root.SetOut(&out)
		root.SetArgs([]string{"push", "--server", srv.URL, "ant", "ant"})
		require.NoError(t, root.Execute())

		lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
		require.Len(t, lines, 2)
		require.Equal(t, "published", gjson.GetBytes(lines[0], "outcome").String())
		require.Equal(t, "duplicate", gjson.GetBytes(lines[1], "outcome").String())
	})

	t.Run("artifact", func(t *testing.T) {
		util.PrepareTempConfigDir(t)

		artifact := `{"word":"x","followWordObjs":[]}`
		file := filepath.Join(t.TempDir(), "tree.json")
		require.NoError(t, os.WriteFile(file, []byte(artifact), 0o600))

		root := cmd.NewRootCommand()
		root.AddCommand(NewPushCommand())
		root.SetOut(&bytes.Buffer{})
		root.SetArgs([]string{"push", "--server", srv.URL, "--artifact", file})
		require.NoError(t, root.Execute())

		require.Equal(t, artifact, p.Current().Data)
	})
}
