package load

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/echotree/echotree/cmd"
	"github.com/echotree/echotree/cmd/util"
	"github.com/echotree/echotree/pkg/storage"
	"github.com/echotree/echotree/pkg/storage/memory"
	"github.com/echotree/echotree/pkg/storage/mocks"
)

func TestLoad(t *testing.T) {
	ds := memory.New()
	t.Cleanup(ds.Close)

	input := `word,follower,count
ant,hill,5
ant, eater ,3
ant,,7
hill,top,2
ant,hill,1
`
	total, err := Load(context.Background(), ds, strings.NewReader(input), 2, true)
	require.NoError(t, err)
	require.Equal(t, 4, total)

	followers, err := ds.ReadFollowers(context.Background(), "ant")
	require.NoError(t, err)
	require.Equal(t, []storage.Follower{{Word: "hill", Count: 6}, {Word: "eater", Count: 3}}, followers)
}

func TestLoadBatches(t *testing.T) {
	ctrl := gomock.NewController(t)
	writer := mocks.NewMockFollowerWriter(ctrl)

	gomock.InOrder(
		writer.EXPECT().WriteFollowers(gomock.Any(), gomock.Len(2)).Return(nil),
		writer.EXPECT().WriteFollowers(gomock.Any(), gomock.Len(2)).Return(nil),
		writer.EXPECT().WriteFollowers(gomock.Any(), gomock.Len(1)).Return(nil),
	)

	input := "a,b,1\na,c,1\na,d,1\nb,c,1\nb,d,1\n"
	total, err := Load(context.Background(), writer, strings.NewReader(input), 2, false)
	require.NoError(t, err)
	require.Equal(t, 5, total)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		err   string
	}{
		{name: "invalid_count", input: "ant,hill,5\nant,eater,many\n", err: `line 2: invalid count "many"`},
		{name: "negative_count", input: "ant,hill,-1\n", err: "line 1: invalid co-occurrence count"},
		{name: "missing_field", input: "ant,hill\n", err: "wrong number of fields"},
		{name: "empty_word", input: " ,hill,1\n", err: "line 1: invalid word"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ds := memory.New()
			t.Cleanup(ds.Close)

			_, err := Load(context.Background(), ds, strings.NewReader(test.input), 10, false)
			require.ErrorContains(t, err, test.err)
		})
	}
}

func TestLoadCommandSQLite(t *testing.T) {
	util.PrepareTempConfigDir(t)
	ds, uri := util.MustOpenTestDatastore(t, "sqlite")

	file := filepath.Join(t.TempDir(), "wordstats.csv")
	require.NoError(t, os.WriteFile(file, []byte("ant,hill,5\nant,eater,3\n"), 0o600))

	root := cmd.NewRootCommand()
	root.AddCommand(NewLoadCommand())
	root.SetArgs([]string{"load", "--lookup-engine", "sqlite", "--lookup-uri", uri, "--log-level", "none", file})
	require.NoError(t, root.Execute())

	followers, err := ds.ReadFollowers(context.Background(), "ant")
	require.NoError(t, err)
	require.Equal(t, []string{"hill", "eater"}, storage.Words(followers))
}
