package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mscwg/mscat/internal/thesaurus"
	"github.com/mscwg/mscat/internal/ui"
)

var thesaurusCmd = &cobra.Command{
	Use:     "thesaurus",
	GroupID: "vocab",
	Short:   "Browse the subject thesaurus",
	Long: `Browse the controlled vocabulary used for subject keywords.

The vocabulary is ingested from the configured YAML source file on
first use and served from the vocabulary store afterwards.

Example usage:
  msc thesaurus lookup "Earth sciences"
  msc thesaurus lookup Geology --broader
  msc thesaurus tree
  msc thesaurus tree Hydrology`,
}

var thesaurusLookupCmd = &cobra.Command{
	Use:   "lookup <label>",
	Short: "Look up a term by its label",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		broader, _ := cmd.Flags().GetBool("broader")
		narrower, _ := cmd.Flags().GetBool("narrower")

		_, th, closer, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer closer()
		if th == nil {
			return thesaurus.ErrNoSource
		}

		uri := th.URIForLabel(args[0])
		if uri == "" {
			return fmt.Errorf("no thesaurus term labelled %q", args[0])
		}

		fields := []ui.Field{
			{Label: "uri", Value: uri},
			{Label: "long label", Value: th.LongLabelForURI(uri)},
		}
		if broader || narrower {
			labels := make([]string, 0, 8)
			for _, u := range th.Branch(uri, broader, narrower) {
				labels = append(labels, th.LabelForURI(u))
			}
			fields = append(fields, ui.Field{Label: "branch", Value: strings.Join(labels, "\n")})
		}
		fmt.Print(styles.RenderRecord(uri, th.LabelForURI(uri), fields))
		return nil
	},
}

var thesaurusTreeCmd = &cobra.Command{
	Use:   "tree [label]...",
	Short: "Print the vocabulary tree",
	Long: `Print the vocabulary as an indented tree. With labels given, only the
branches containing those terms are shown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		_, th, closer, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer closer()
		if th == nil {
			return thesaurus.ErrNoSource
		}

		// Each named term keeps its whole branch visible: ancestors for
		// context, descendants for detail.
		var filter []string
		for _, label := range args {
			branch := th.Branch(label, true, true)
			if branch == nil {
				return fmt.Errorf("no thesaurus term labelled %q", label)
			}
			filter = append(filter, branch...)
		}

		var lines []ui.TreeLine
		for _, node := range th.Tree(filter) {
			lines = appendTreeLines(lines, node, 0)
		}
		fmt.Print(styles.RenderTree(lines))
		return nil
	},
}

func appendTreeLines(lines []ui.TreeLine, node *thesaurus.Node, depth int) []ui.TreeLine {
	lines = append(lines, ui.TreeLine{Depth: depth, Label: node.Label})
	for _, child := range node.Children {
		lines = appendTreeLines(lines, child, depth+1)
	}
	return lines
}

func init() {
	thesaurusLookupCmd.Flags().Bool("broader", false, "include broader terms")
	thesaurusLookupCmd.Flags().Bool("narrower", false, "include narrower terms")
	thesaurusCmd.AddCommand(thesaurusLookupCmd)
	thesaurusCmd.AddCommand(thesaurusTreeCmd)
	rootCmd.AddCommand(thesaurusCmd)
}
