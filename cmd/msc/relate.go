package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mscwg/mscat/internal/record"
	"github.com/mscwg/mscat/internal/relation"
	"github.com/mscwg/mscat/internal/ui"
)

var relateCmd = &cobra.Command{
	Use:     "relate",
	GroupID: "relations",
	Short:   "Inspect and edit relations directly",
	Long: `Work with the relation store directly, bypassing the record edit form.

A relation is a directed edge: a subject record, a predicate naming the
relationship, and an object record. Multi-word predicates are quoted.

Example usage:
  msc relate add m13 maintainer g5
  msc relate remove m13 maintainer g5
  msc relate of m13                       # Everything m13 points at
  msc relate of m13 maintainer            # Just its maintainers
  msc relate to g5 maintainer             # Everything maintained by g5`,
}

var relateAddCmd = &cobra.Command{
	Use:   "add <subject> <predicate> <object>...",
	Short: "Add relations from a subject to one or more objects",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		subject, predicate, objects, err := parseEdgeArgs(args)
		if err != nil {
			return err
		}

		catalog, _, closer, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer closer()

		batch := relation.Batch{}
		batch.Insert(subject, predicate, objects...)
		if err := catalog.Relations.Add(ctx, batch); err != nil {
			return err
		}

		fmt.Printf("Added %d relation(s) from %s\n", len(objects), subject)
		return nil
	},
}

var relateRemoveCmd = &cobra.Command{
	Use:   "remove <subject> <predicate> <object>...",
	Short: "Remove relations from a subject",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		subject, predicate, objects, err := parseEdgeArgs(args)
		if err != nil {
			return err
		}

		catalog, _, closer, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer closer()

		batch := relation.Batch{}
		batch.Insert(subject, predicate, objects...)
		removed, err := catalog.Relations.Remove(ctx, batch)
		if err != nil {
			return err
		}

		count := 0
		for _, predicates := range removed {
			for _, list := range predicates {
				count += len(list)
			}
		}
		fmt.Printf("Removed %d relation(s) from %s\n", count, subject)
		return nil
	},
}

var relateOfCmd = &cobra.Command{
	Use:   "of <subject> [predicate]",
	Short: "List the objects a subject points at",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		subject, err := normalizeID(args[0])
		if err != nil {
			return err
		}
		predicate := ""
		if len(args) > 1 {
			predicate = args[1]
		}

		catalog, _, closer, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer closer()

		ids, err := catalog.Relations.Objects(ctx, subject, predicate)
		if err != nil {
			return err
		}
		printIDs(cmd, catalog, ids)
		return nil
	},
}

var relateToCmd = &cobra.Command{
	Use:   "to <object> [predicate]",
	Short: "List the subjects pointing at an object",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		object, err := normalizeID(args[0])
		if err != nil {
			return err
		}
		predicate := ""
		if len(args) > 1 {
			predicate = args[1]
		}

		catalog, _, closer, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer closer()

		ids, err := catalog.Relations.Subjects(ctx, predicate, object)
		if err != nil {
			return err
		}
		printIDs(cmd, catalog, ids)
		return nil
	},
}

// parseEdgeArgs normalizes the identifiers of an add or remove
// invocation: subject, predicate, then one or more objects.
func parseEdgeArgs(args []string) (subject, predicate string, objects []string, err error) {
	subject, err = normalizeID(args[0])
	if err != nil {
		return "", "", nil, err
	}
	predicate = args[1]
	for _, arg := range args[2:] {
		object, err := normalizeID(arg)
		if err != nil {
			return "", "", nil, err
		}
		objects = append(objects, object)
	}
	return subject, predicate, objects, nil
}

func printIDs(cmd *cobra.Command, catalog *record.Catalog, ids []string) {
	rows := make([]ui.ListRow, 0, len(ids))
	for _, id := range ids {
		row := ui.ListRow{ID: id}
		if r, err := catalog.LoadByID(cmd.Context(), id); err == nil {
			row.Name = r.Name()
		}
		rows = append(rows, row)
	}
	fmt.Print(styles.RenderList(rows))
}

func init() {
	relateCmd.AddCommand(relateAddCmd)
	relateCmd.AddCommand(relateRemoveCmd)
	relateCmd.AddCommand(relateOfCmd)
	relateCmd.AddCommand(relateToCmd)
	rootCmd.AddCommand(relateCmd)
}
