package sequences

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/echotree/echotree/cmd"
	"github.com/echotree/echotree/pkg/wordtree"
)

const artifact = `{"word":"ant","followWordObjs":[` +
	`{"word":"hill","followWordObjs":[{"word":"top","followWordObjs":[]}]},` +
	`{"word":"eater","followWordObjs":[]}]}`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := cmd.NewRootCommand()
	root.AddCommand(NewSequencesCommand())
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"sequences"}, args...))

	err := root.Execute()
	return out.String(), err
}

func TestSequencesCommand(t *testing.T) {
	t.Run("stdin", func(t *testing.T) {
		out, err := execute(t, artifact, "-")
		require.NoError(t, err)
		require.Equal(t, "ant hill top\nant eater\n", out)
	})

	t.Run("file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "tree.json")
		require.NoError(t, os.WriteFile(file, []byte(artifact), 0o600))

		out, err := execute(t, "", file)
		require.NoError(t, err)
		require.Equal(t, "ant hill top\nant eater\n", out)
	})

	t.Run("empty_tree", func(t *testing.T) {
		out, err := execute(t, wordtree.EmptyArtifact, "-")
		require.NoError(t, err)
		require.Empty(t, out)
	})

	t.Run("malformed_tree", func(t *testing.T) {
		_, err := execute(t, `{"word":"ant","followWordObjs":[null]}`, "-")
		require.ErrorIs(t, err, wordtree.ErrMalformedTree)
	})

	t.Run("missing_file", func(t *testing.T) {
		_, err := execute(t, "", filepath.Join(t.TempDir(), "absent.json"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}
