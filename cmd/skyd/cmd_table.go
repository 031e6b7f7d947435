package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/user/skyd/internal/protocol"
	"github.com/user/skyd/internal/session"
	"github.com/user/skyd/internal/storage"
	"github.com/user/skyd/internal/types"
)

func init() {
	rootCmd.AddCommand(tableCmd)
	tableCmd.AddCommand(tableActionsCmd, tableActionAddCmd, tablePropertiesCmd, tableEventsCmd, tableStatsCmd)

	tableEventsCmd.Flags().Int("limit", 20, "number of most recent events to show (0 for all)")
}

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Inspect tables on local disk",
}

// withLocalTable opens database/table under the configured root path for the
// duration of fn. A missing table is an error unless create is set.
func withLocalTable(ctx context.Context, database, table string, create bool, fn func(types.Table) error) error {
	for _, name := range []string{database, table} {
		if err := protocol.ValidName(name); err != nil {
			return err
		}
	}
	cfg := loadConfig()
	if !create {
		if _, err := os.Stat(filepath.Join(cfg.RootPath, database, table)); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("table %s/%s not found under %s", database, table, cfg.RootPath)
			}
			return err
		}
	}
	return session.With(ctx, storage.NewEngine(), cfg.RootPath, database, table, func(s *session.Session) error {
		return fn(s.Table)
	})
}

var tableActionsCmd = &cobra.Command{
	Use:   "actions <database> <table>",
	Short: "List the actions of a table",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var actions []*types.Action
		err := withLocalTable(cmd.Context(), args[0], args[1], false, func(t types.Table) (err error) {
			actions, err = t.Actions(cmd.Context())
			return err
		})
		if err != nil {
			return err
		}
		if len(actions) == 0 {
			fmt.Fprintln(os.Stdout, "No actions found.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME")
		for _, a := range actions {
			fmt.Fprintf(w, "%d\t%s\n", a.ID, a.Name)
		}
		return w.Flush()
	},
}

var tableActionAddCmd = &cobra.Command{
	Use:   "action-add <database> <table> <name>",
	Short: "Create an action, creating the table if needed",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var action *types.Action
		err := withLocalTable(cmd.Context(), args[0], args[1], true, func(t types.Table) (err error) {
			action, err = t.CreateAction(cmd.Context(), args[2])
			return err
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Action %q created (id %d).\n", action.Name, action.ID)
		return nil
	},
}

var tablePropertiesCmd = &cobra.Command{
	Use:   "properties <database> <table>",
	Short: "List the properties of a table",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var props []*types.Property
		err := withLocalTable(cmd.Context(), args[0], args[1], false, func(t types.Table) (err error) {
			props, err = t.Properties(cmd.Context())
			return err
		})
		if err != nil {
			return err
		}
		if len(props) == 0 {
			fmt.Fprintln(os.Stdout, "No properties found.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE")
		for _, p := range props {
			fmt.Fprintf(w, "%d\t%s\t%s\n", p.ID, p.Name, p.DataType)
		}
		return w.Flush()
	},
}

var tableEventsCmd = &cobra.Command{
	Use:   "events <database> <table>",
	Short: "Show the most recent events of a table",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		var events []*types.Event
		err := withLocalTable(cmd.Context(), args[0], args[1], false, func(t types.Table) (err error) {
			events, err = t.Events(cmd.Context(), limit)
			return err
		})
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Fprintln(os.Stdout, "No events found.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tOBJECT\tACTION\tDATA")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\n",
				types.UnshiftTime(e.Timestamp).UTC().Format(time.RFC3339Nano),
				e.ObjectID, e.ActionID, formatData(e.Data))
		}
		return w.Flush()
	},
}

var tableStatsCmd = &cobra.Command{
	Use:   "stats <database> <table>",
	Short: "Show table statistics",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var st *types.TableStats
		err := withLocalTable(cmd.Context(), args[0], args[1], false, func(t types.Table) (err error) {
			st, err = t.Stats(cmd.Context())
			return err
		})
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "events\t%s\n", humanize.Comma(st.Events))
		fmt.Fprintf(w, "actions\t%d\n", st.Actions)
		fmt.Fprintf(w, "properties\t%d\n", st.Properties)
		fmt.Fprintf(w, "size\t%s\n", humanize.Bytes(uint64(st.Bytes)))
		return w.Flush()
	},
}

// formatData renders event data as id=value pairs ordered by property id.
func formatData(data map[int64]any) string {
	if len(data) == 0 {
		return "-"
	}
	ids := make([]int64, 0, len(data))
	for id := range data {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d=%v", id, data[id])
	}
	return strings.Join(parts, " ")
}
