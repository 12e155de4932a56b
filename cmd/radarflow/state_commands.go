package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"radarflow/internal/config"
	"radarflow/internal/state"
)

const observedLayout = "2006-01-02 15:04:05"

func newDownloadsCommand(ctx *commandContext) *cobra.Command {
	downloadsCmd := &cobra.Command{
		Use:   "downloads",
		Short: "Inspect download records",
	}

	var source, status string
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List download records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := state.DownloadFilter{Source: strings.TrimSpace(source), Limit: limit}
			if status != "" {
				parsed, err := parseDownloadStatus(status)
				if err != nil {
					return err
				}
				filter.Status = parsed
			}
			return ctx.withStore(func(_ *config.Config, store *state.Store) error {
				items, err := store.ListDownloads(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, items)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No downloads recorded")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, d := range items {
					rows = append(rows, []string{
						d.Filename, string(d.Status), humanize.IBytes(uint64(max(d.Size, 0))), d.Observed.UTC().Format(observedLayout),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Filename", "Status", "Size", "Observed"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	}
	listCmd.Flags().StringVar(&source, "source", "", "Filter by radar source")
	listCmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status (completed, failed, partial)")
	listCmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows to show (0 for all)")
	downloadsCmd.AddCommand(listCmd)

	removeCmd := &cobra.Command{
		Use:   "remove <filename>...",
		Short: "Forget download records so the files are fetched again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *state.Store) error {
				out := cmd.OutOrStdout()
				for _, name := range args {
					removed, err := store.RemoveDownload(cmd.Context(), strings.TrimSpace(name))
					if err != nil {
						return err
					}
					if removed {
						fmt.Fprintf(out, "Download %s removed\n", name)
					} else {
						fmt.Fprintf(out, "Download %s not found\n", name)
					}
				}
				return nil
			})
		},
	}
	downloadsCmd.AddCommand(removeCmd)
	return downloadsCmd
}

func newVolumesCommand(ctx *commandContext) *cobra.Command {
	volumesCmd := &cobra.Command{
		Use:   "volumes",
		Short: "Inspect volume processing records",
	}

	var source string
	var statuses []string
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List volumes, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseStatuses(statuses)
			if err != nil {
				return err
			}
			filter := state.VolumeFilter{Source: strings.TrimSpace(source), Statuses: parsed, Limit: limit}
			return ctx.withStore(func(_ *config.Config, store *state.Store) error {
				items, err := store.ListVolumes(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, items)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No volumes recorded")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Volume", "Status", "Complete", "Fields", "Observed", "Error"},
					buildVolumeRows(items),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	listCmd.Flags().StringVar(&source, "source", "", "Filter by radar source")
	listCmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	listCmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows to show (0 for all)")
	volumesCmd.AddCommand(listCmd)
	return volumesCmd
}

func buildVolumeRows(items []state.Volume) [][]string {
	rows := make([][]string, 0, len(items))
	for _, v := range items {
		rows = append(rows, []string{
			v.VolumeID,
			string(v.Status),
			yesNo(v.IsComplete),
			fmt.Sprintf("%d/%d", len(v.DownloadedFields), len(v.ExpectedFields)),
			v.Observed.UTC().Format(observedLayout),
			truncate(v.ErrorMessage, 60),
		})
	}
	return rows
}

func newProductsCommand(ctx *commandContext) *cobra.Command {
	productsCmd := &cobra.Command{
		Use:   "products",
		Short: "Inspect product generation records",
	}

	var productType string
	var statuses []string
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List product records, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseStatuses(statuses)
			if err != nil {
				return err
			}
			filter := state.ProductFilter{ProductType: strings.TrimSpace(productType), Statuses: parsed, Limit: limit}
			return ctx.withStore(func(_ *config.Config, store *state.Store) error {
				items, err := store.ListProducts(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, items)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No products recorded")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, p := range items {
					rows = append(rows, []string{
						p.VolumeID, p.ProductType, string(p.Status), p.ErrorType, truncate(p.ErrorMessage, 60),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Volume", "Type", "Status", "Error Type", "Error"}, rows, nil))
				return nil
			})
		},
	}
	listCmd.Flags().StringVarP(&productType, "type", "t", "", "Filter by product type")
	listCmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	listCmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows to show (0 for all)")
	productsCmd.AddCommand(listCmd)
	return productsCmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	retryCmd := &cobra.Command{
		Use:   "retry",
		Short: "Reset failed records so the daemons pick them up again",
	}

	retryCmd.AddCommand(&cobra.Command{
		Use:   "downloads",
		Short: "Forget failed and partial downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *state.Store) error {
				n, err := store.RetryFailedDownloads(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d downloads for retry\n", n)
				return nil
			})
		},
	})
	retryCmd.AddCommand(&cobra.Command{
		Use:   "volumes",
		Short: "Move failed volumes back to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *state.Store) error {
				n, err := store.RetryFailedVolumes(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d volumes for retry\n", n)
				return nil
			})
		},
	})

	var productType string
	productsCmd := &cobra.Command{
		Use:   "products",
		Short: "Move failed products back to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *state.Store) error {
				n, err := store.RetryFailedProducts(cmd.Context(), strings.TrimSpace(productType))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d products for retry\n", n)
				return nil
			})
		},
	}
	productsCmd.Flags().StringVarP(&productType, "type", "t", "", "Only retry this product type")
	retryCmd.AddCommand(productsCmd)
	return retryCmd
}

func newEvictCommand(ctx *commandContext) *cobra.Command {
	var before string
	var olderThanDays int
	var removeFiles bool

	cmd := &cobra.Command{
		Use:   "evict",
		Short: "Delete download records observed before a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			cutoff, err := evictionCutoff(before, olderThanDays, time.Now())
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *state.Store) error {
				n, err := store.EvictDownloadsBefore(cmd.Context(), cutoff, removeFiles)
				fmt.Fprintf(cmd.OutOrStdout(), "Evicted %d downloads observed before %s\n", n, cutoff.UTC().Format(time.RFC3339))
				if err != nil {
					return fmt.Errorf("some records were kept: %w", err)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&before, "before", "", "Cutoff date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Cutoff as a number of days before now")
	cmd.Flags().BoolVar(&removeFiles, "remove-files", false, "Delete the local BUFR files too")
	return cmd
}

func evictionCutoff(before string, olderThanDays int, now time.Time) (time.Time, error) {
	before = strings.TrimSpace(before)
	switch {
	case before != "" && olderThanDays > 0:
		return time.Time{}, fmt.Errorf("specify only one of --before or --older-than")
	case before != "":
		return config.ParseDate(before)
	case olderThanDays > 0:
		return now.UTC().AddDate(0, 0, -olderThanDays), nil
	default:
		return time.Time{}, fmt.Errorf("one of --before or --older-than is required")
	}
}

func newClearCommand(ctx *commandContext) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every record from the state database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("clear removes all downloads, volumes, and products; rerun with --force")
			}
			return ctx.withStore(func(_ *config.Config, store *state.Store) error {
				if err := store.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "State database cleared")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Confirm removal of all records")
	return cmd
}

func newStoreHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check state database health (schema, integrity, tables)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *state.Store) error {
				resp, err := store.CheckHealth(cmd.Context())
				if ctx.JSONMode() {
					if jsonErr := writeJSON(cmd, resp); jsonErr != nil {
						return jsonErr
					}
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Database path: %s\n", resp.DBPath)
				fmt.Fprintf(out, "Database exists: %s\n", yesNo(resp.DatabaseExists))
				fmt.Fprintf(out, "Readable: %s\n", yesNo(resp.DatabaseReadable))
				fmt.Fprintf(out, "Schema version: %d\n", resp.SchemaVersion)
				fmt.Fprintf(out, "Tables: %s\n", strings.Join(resp.TablesPresent, ", "))
				if len(resp.MissingTables) > 0 {
					fmt.Fprintf(out, "Missing tables: %s\n", strings.Join(resp.MissingTables, ", "))
				} else {
					fmt.Fprintln(out, "Missing tables: none")
				}
				fmt.Fprintf(out, "Integrity check: %s\n", yesNo(resp.IntegrityCheck))
				if resp.Error != "" {
					fmt.Fprintf(out, "Error: %s\n", resp.Error)
				}
				return err
			})
		},
	}
}

func parseStatuses(values []string) ([]state.Status, error) {
	out := make([]state.Status, 0, len(values))
	for _, v := range values {
		st, ok := state.ParseStatus(strings.ToLower(strings.TrimSpace(v)))
		if !ok {
			return nil, fmt.Errorf("invalid status %q", v)
		}
		out = append(out, st)
	}
	return out, nil
}

func parseDownloadStatus(value string) (state.DownloadStatus, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, st := range state.AllDownloadStatuses {
		if string(st) == value {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid download status %q", value)
}
