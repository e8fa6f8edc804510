package wordtree

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/echotree/echotree/pkg/storage"
	"github.com/echotree/echotree/pkg/storage/memory"
	"github.com/echotree/echotree/pkg/storage/storagewrappers"
)

type staticSource struct {
	followers map[string][]string
	calls     map[string]int
	err       map[string]error
}

func newStaticSource(followers map[string][]string) *staticSource {
	return &staticSource{followers: followers, calls: map[string]int{}, err: map[string]error{}}
}

func (s *staticSource) GetFollowers(_ context.Context, word string) ([]string, error) {
	s.calls[word]++
	if err := s.err[word]; err != nil {
		return nil, err
	}
	return s.followers[word], nil
}

func antSource() *staticSource {
	return newStaticSource(map[string][]string{
		"ant":  {"hill", "eater", "farm"},
		"hill": {"top"},
	})
}

func TestBuildAntScenario(t *testing.T) {
	ds := memory.New()
	require.NoError(t, ds.WriteFollowers(context.Background(), []storage.Row{
		{Word: "ant", Follower: "hill", Count: 5},
		{Word: "ant", Follower: "eater", Count: 3},
		{Word: "ant", Follower: "farm", Count: 1},
		{Word: "hill", Follower: "top", Count: 2},
	}))

	builder := NewBuilder(storagewrappers.NewFollowerCache(ds))

	tree, err := builder.Build(context.Background(), "ant", 2, 2)
	require.NoError(t, err)

	artifact, err := Encode(tree)
	require.NoError(t, err)
	require.JSONEq(t,
		`{"word":"ant","followWordObjs":[{"word":"hill","followWordObjs":[{"word":"top","followWordObjs":[]}]},{"word":"eater","followWordObjs":[]}]}`,
		artifact)
	require.False(t, gjson.Get(artifact, `followWordObjs.#(word=="farm")`).Exists())
}

func TestBuildDepthZeroYieldsNoTree(t *testing.T) {
	source := antSource()
	builder := NewBuilder(source)

	for _, depth := range []int{0, -1} {
		tree, err := builder.Build(context.Background(), "ant", depth, 2)
		require.NoError(t, err)
		require.Nil(t, tree)

		artifact, err := Encode(tree)
		require.NoError(t, err)
		require.Equal(t, EmptyArtifact, artifact)
	}

	require.Empty(t, source.calls)
}

func TestBuildDepthOneEmitsLeavesWithoutLookingThemUp(t *testing.T) {
	source := antSource()
	builder := NewBuilder(source)

	tree, err := builder.Build(context.Background(), "ant", 1, 5)
	require.NoError(t, err)

	expected := &WordTree{Word: "ant", FollowWordObjs: []*WordTree{
		{Word: "hill", FollowWordObjs: []*WordTree{}},
		{Word: "eater", FollowWordObjs: []*WordTree{}},
		{Word: "farm", FollowWordObjs: []*WordTree{}},
	}}
	if diff := cmp.Diff(expected, tree); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	require.Equal(t, map[string]int{"ant": 1}, source.calls)
}

func TestBuildKeepsRankOrder(t *testing.T) {
	source := newStaticSource(map[string][]string{
		"root": {"z", "a", "m", "b"},
	})
	builder := NewBuilder(source)

	tree, err := builder.Build(context.Background(), "root", 3, 3)
	require.NoError(t, err)

	var words []string
	for _, c := range tree.FollowWordObjs {
		words = append(words, c.Word)
	}
	require.Equal(t, []string{"z", "a", "m"}, words)
}

func TestBuildBounds(t *testing.T) {
	// Every word is followed by ten others, so trees are as large as the bounds allow.
	followers := map[string][]string{}
	for i := 0; i < 10; i++ {
		var next []string
		for j := 0; j < 10; j++ {
			next = append(next, fmt.Sprintf("w%d", (i+j)%10))
		}
		followers[fmt.Sprintf("w%d", i)] = next
	}
	builder := NewBuilder(newStaticSource(followers))

	for depth := 1; depth <= 4; depth++ {
		for branch := 0; branch <= 4; branch++ {
			t.Run(fmt.Sprintf("depth_%d_branch_%d", depth, branch), func(t *testing.T) {
				tree, err := builder.Build(context.Background(), "w0", depth, branch)
				require.NoError(t, err)
				require.NotNil(t, tree)
				require.LessOrEqual(t, tree.MaxBranch(), branch)
				require.LessOrEqual(t, tree.Depth(), depth)
				if branch > 0 {
					require.Equal(t, depth, tree.Depth())
					require.Equal(t, branch, tree.MaxBranch())
				}
			})
		}
	}
}

func TestBuildDoesNotPruneCycles(t *testing.T) {
	source := newStaticSource(map[string][]string{
		"very": {"very"},
	})
	builder := NewBuilder(source)

	tree, err := builder.Build(context.Background(), "very", 3, 2)
	require.NoError(t, err)
	require.Equal(t, 3, tree.Depth())

	for node := tree; len(node.FollowWordObjs) > 0; node = node.FollowWordObjs[0] {
		require.Equal(t, "very", node.Word)
	}

	require.Equal(t, 3, source.calls["very"])
}

func TestBuildNoFollowersIsNotAnError(t *testing.T) {
	builder := NewBuilder(newStaticSource(nil))

	tree, err := builder.Build(context.Background(), "lonely", 3, 5)
	require.NoError(t, err)
	require.Equal(t, &WordTree{Word: "lonely", FollowWordObjs: []*WordTree{}}, tree)
}

func TestBuildSkipsEmptyFollowerWords(t *testing.T) {
	builder := NewBuilder(newStaticSource(map[string][]string{
		"root": {"", "a"},
	}))

	tree, err := builder.Build(context.Background(), "root", 1, 5)
	require.NoError(t, err)
	require.Len(t, tree.FollowWordObjs, 1)
	require.Equal(t, "a", tree.FollowWordObjs[0].Word)
}

func TestBuildPropagatesLookupFailure(t *testing.T) {
	storeErr := errors.New("store unreachable")
	source := antSource()
	source.err["hill"] = storeErr

	builder := NewBuilder(source)

	tree, err := builder.Build(context.Background(), "ant", 3, 2)
	require.Nil(t, tree)
	require.ErrorIs(t, err, storeErr)

	var lookupErr *LookupError
	require.ErrorAs(t, err, &lookupErr)
	require.Equal(t, "hill", lookupErr.Word)
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBuilder(antSource()).Build(ctx, "ant", 2, 2)
	require.ErrorIs(t, err, context.Canceled)
}
