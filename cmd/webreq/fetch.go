package main

import (
	"encoding/json"

	"github.com/Sternrassler/webreq/pkg/pagination"
	"github.com/spf13/cobra"
)

func newFetchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Drain a paginated endpoint and print every item",
	}

	cmd.AddCommand(newFetchOffsetCmd(a))
	cmd.AddCommand(newFetchCursorCmd(a))
	return cmd
}

func newFetchOffsetCmd(a *app) *cobra.Command {
	var (
		req          requestFlags
		startAtParam string
		itemsField   string
		format       string
	)

	cmd := &cobra.Command{
		Use:     "offset",
		Short:   "Drain an endpoint paginated by a numeric start-at parameter",
		Example: `  webreq fetch offset --host jira.example.com --path /rest/api/2/project/{key}/versions -p key=CORE --start-at-param startAt --items-field values`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			coords, err := req.coordinates()
			if err != nil {
				return err
			}
			body, err := req.body()
			if err != nil {
				return err
			}

			items, err := pagination.FetchAllWithStartAt(cmd.Context(), a.drainer(), coords, startAtParam, body, func() pagination.NumberedPage[json.RawMessage] {
				return pagination.NewFieldPage(itemsField, "")
			})
			if err != nil {
				return err
			}
			return writeItems(cmd.OutOrStdout(), format, items)
		},
	}

	req.register(cmd.Flags(), "GET")
	cmd.Flags().StringVar(&startAtParam, "start-at-param", "startAt", "query parameter carrying the item offset")
	cmd.Flags().StringVar(&itemsField, "items-field", "values", "top-level JSON field holding the page items")
	cmd.Flags().StringVarP(&format, "output", "o", formatJSON, "output format: json, yaml or table")

	return cmd
}

func newFetchCursorCmd(a *app) *cobra.Command {
	var (
		req         requestFlags
		itemsField  string
		cursorField string
		format      string
	)

	cmd := &cobra.Command{
		Use:     "cursor",
		Short:   "Drain an endpoint paginated by a continuation cursor",
		Example: `  webreq fetch cursor --host api.example.com --path /v1/events --items-field results --cursor-field cursor --cursor-param cursor`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			coords, err := req.coordinates()
			if err != nil {
				return err
			}
			body, err := req.body()
			if err != nil {
				return err
			}

			items, err := pagination.FetchAllWithCursor(cmd.Context(), a.drainer(), coords, body, func() pagination.CursorPage[json.RawMessage] {
				return pagination.NewFieldPage(itemsField, cursorField)
			})
			if err != nil {
				return err
			}
			return writeItems(cmd.OutOrStdout(), format, items)
		},
	}

	req.register(cmd.Flags(), "GET")
	cmd.Flags().StringVar(&itemsField, "items-field", "results", "top-level JSON field holding the page items")
	cmd.Flags().StringVar(&cursorField, "cursor-field", "cursor", "top-level JSON field holding the next cursor")
	cmd.Flags().String("cursor-param", "cursor", "query parameter carrying the cursor")
	cmd.Flags().StringVarP(&format, "output", "o", formatJSON, "output format: json, yaml or table")

	bindFlags(a.v, cmd.Flags().Lookup, map[string]string{
		"pagination.cursor_param": "cursor-param",
	})

	return cmd
}
