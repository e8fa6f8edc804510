// Package sequences contains the command that flattens a word tree into word sequences.
package sequences

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/echotree/echotree/pkg/wordtree"
)

func NewSequencesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sequences <file|->",
		Short: "Print the word sequences of a word tree",
		Long: `The sequences command reads a word tree document from a file (or '-' for stdin) and
prints one line per child of the root: the root word followed by the words of that child's
subtree in depth-first order.`,
		Args: cobra.ExactArgs(1),
		RunE: runSequences,
	}
}

func runSequences(cmd *cobra.Command, args []string) error {
	data, err := readArtifact(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	tree, err := wordtree.Decode(string(data))
	if err != nil {
		return err
	}

	for _, sequence := range tree.Sequences() {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), sequence); err != nil {
			return err
		}
	}
	return nil
}

func readArtifact(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(name)
}
