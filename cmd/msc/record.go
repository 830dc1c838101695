package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mscwg/mscat/internal/record"
	"github.com/mscwg/mscat/internal/ui"
)

var listCmd = &cobra.Command{
	Use:     "list <series>",
	GroupID: "records",
	Short:   "List the records of a series",
	Long: `List every record in a series, one per line with its MSC ID.

Example usage:
  msc list m          # All metadata schemes
  msc list g          # All organizations`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		catalog, _, closer, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer closer()

		records, err := catalog.All(ctx, args[0])
		if err != nil {
			return err
		}

		rows := make([]ui.ListRow, 0, len(records))
		for _, r := range records {
			rows = append(rows, ui.ListRow{ID: r.IDString(), Name: r.Name()})
		}
		fmt.Print(styles.RenderList(rows))
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:     "show <mscid>",
	GroupID: "records",
	Short:   "Show a record with its relationships",
	Long: `Show a record's fields and its current relationships to other records.

Example usage:
  msc show m13
  msc show msc:g5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := normalizeID(args[0])
		if err != nil {
			return err
		}

		catalog, _, closer, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer closer()

		r, err := catalog.LoadByID(ctx, id)
		if err != nil {
			return err
		}

		fields, err := recordFields(cmd, catalog, r)
		if err != nil {
			return err
		}
		fmt.Print(styles.RenderRecord(r.IDString(), r.Name(), fields))
		return nil
	},
}

// recordFields flattens a record's document and relationships into
// display fields: document keys in sorted order, then the series'
// related-entity fields in form order.
func recordFields(cmd *cobra.Command, catalog *record.Catalog, r *record.Record) ([]ui.Field, error) {
	ctx := cmd.Context()

	keys := make([]string, 0, len(r.Data))
	for key := range r.Data {
		if key == r.Series.NameField {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var fields []ui.Field
	for _, key := range keys {
		fields = append(fields, ui.Field{Label: key, Value: formatValue(catalog, key, r.Data[key])})
	}

	related, err := catalog.Related(ctx, r)
	if err != nil {
		return nil, err
	}
	for _, field := range r.Series.Fields {
		ids, ok := related[field.Name]
		if !ok {
			continue
		}
		lines := make([]string, 0, len(ids))
		for _, id := range ids {
			if other, err := catalog.LoadByID(ctx, id); err == nil {
				lines = append(lines, fmt.Sprintf("%s  %s", id, other.Name()))
			} else {
				lines = append(lines, id)
			}
		}
		fields = append(fields, ui.Field{Label: field.Name, Value: strings.Join(lines, "\n")})
	}
	return fields, nil
}

// formatValue renders a document value for display. Keyword URIs are
// shown as their thesaurus labels when a vocabulary is loaded.
func formatValue(catalog *record.Catalog, key string, value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []any:
		lines := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				s = fmt.Sprintf("%v", item)
			}
			if key == "keywords" && catalog.Keywords != nil {
				if label := catalog.Keywords.LabelForURI(s); label != "" {
					s = label
				}
			}
			lines = append(lines, s)
		}
		return strings.Join(lines, "\n")
	case map[string]any:
		names := make([]string, 0, len(v))
		for name := range v {
			names = append(names, name)
		}
		sort.Strings(names)
		lines := make([]string, 0, len(names))
		for _, name := range names {
			lines = append(lines, fmt.Sprintf("%s: %v", name, v[name]))
		}
		return strings.Join(lines, "\n")
	default:
		return fmt.Sprintf("%v", value)
	}
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
}
