package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/mscwg/mscat/internal/record"
	"github.com/mscwg/mscat/internal/thesaurus"
)

var newCmd = &cobra.Command{
	Use:     "new <series>",
	GroupID: "records",
	Short:   "Create a record interactively",
	Long: `Create a new record in a series through an interactive form. The
record's MSC ID is allocated when the form is submitted.

Example usage:
  msc new m           # New metadata scheme
  msc new g           # New organization`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		catalog, th, closer, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer closer()

		r, err := catalog.New(args[0])
		if err != nil {
			return err
		}
		return runEditForm(ctx, catalog, th, r)
	},
}

var editCmd = &cobra.Command{
	Use:     "edit <mscid>",
	GroupID: "records",
	Short:   "Edit a record interactively",
	Long: `Edit a record through an interactive form. Relationship fields list
every eligible record; the current relationships are preselected, and
the submitted selection replaces them. Relationships changed by someone
else while the form is open are left alone.

Example usage:
  msc edit m13
  msc edit msc:g5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := normalizeID(args[0])
		if err != nil {
			return err
		}

		catalog, th, closer, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer closer()

		r, err := catalog.LoadByID(ctx, id)
		if err != nil {
			return err
		}
		return runEditForm(ctx, catalog, th, r)
	},
}

// runEditForm drives the interactive edit workflow: prior state in,
// form out, submission through the full save pipeline.
func runEditForm(ctx context.Context, catalog *record.Catalog, th *thesaurus.Thesaurus, r *record.Record) error {
	state, snapshot, err := catalog.EditState(ctx, r)
	if err != nil {
		return err
	}

	name := stringValue(state[r.Series.NameField])
	description := stringValue(state["description"])

	groups := []*huh.Group{
		huh.NewGroup(
			huh.NewInput().
				Title(fmt.Sprintf("%s %s", r.Series.Name, r.Series.NameField)).
				Value(&name),
			huh.NewText().
				Title("Description").
				Value(&description),
		),
	}

	var keywords []string
	if th != nil && !r.Series.Vocab {
		// The form's options are long labels; prior keywords arrive as
		// short labels and must match to preselect.
		keywords = stringsValue(state["keywords"])
		for i, label := range keywords {
			if uri := th.URIForLabel(label); uri != "" {
				if long := th.LongLabelForURI(uri); long != "" {
					keywords[i] = long
				}
			}
		}
		choices := th.Choices()
		if len(choices) > 0 {
			groups = append(groups, huh.NewGroup(
				huh.NewMultiSelect[string]().
					Title("Subject areas").
					Options(huh.NewOptions(choices...)...).
					Value(&keywords),
			))
		}
	}

	selections := make([][]string, len(r.Series.Fields))
	shown := make([]bool, len(r.Series.Fields))
	for i, field := range r.Series.Fields {
		choices, err := catalog.Choices(ctx, field.Target)
		if err != nil {
			return err
		}
		// Exclude the record itself from its own choice lists
		options := make([]huh.Option[string], 0, len(choices))
		for _, c := range choices {
			if r.Saved() && c.ID == r.IDString() {
				continue
			}
			options = append(options, huh.NewOption(fmt.Sprintf("%s (%s)", c.Name, c.ID), c.ID))
		}
		if len(options) == 0 {
			continue
		}
		selections[i] = stringsValue(state[field.Name])
		shown[i] = true
		groups = append(groups, huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title(field.Label).
				Options(options...).
				Value(&selections[i]),
		))
	}

	if err := huh.NewForm(groups...).Run(); err != nil {
		return err
	}

	// The submission starts from the full edit state so that document
	// fields the form does not cover survive the round-trip.
	submission := make(map[string]any, len(state)+2)
	for k, v := range state {
		submission[k] = v
	}
	submission[r.Series.NameField] = name
	submission["description"] = description
	submission["old_relations"] = snapshot
	if keywords != nil {
		submission["keywords"] = keywords
	}
	for i, field := range r.Series.Fields {
		if shown[i] {
			submission[field.Name] = selections[i]
		}
	}

	if err := catalog.SaveSubmission(ctx, r, submission); err != nil {
		return err
	}

	fmt.Printf("Saved %s\n", styles.ID.Render(r.IDString()))
	return nil
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func stringsValue(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func init() {
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(editCmd)
}
