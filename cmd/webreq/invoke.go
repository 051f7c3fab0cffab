package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
)

func newInvokeCmd(a *app) *cobra.Command {
	var (
		req     requestFlags
		include bool
		failOn  bool
	)

	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Send one rate-limited request and print the response",
		Example: `  webreq invoke --host api.example.com --path /users/{id} -p id=42
  webreq invoke -X POST --host api.example.com --path /items --json '{"name": "x"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			coords, err := req.coordinates()
			if err != nil {
				return err
			}
			body, err := req.body()
			if err != nil {
				return err
			}

			resp, err := a.client.Invoke(cmd.Context(), coords, body)
			if err != nil {
				return err
			}
			defer resp.Close()

			out := cmd.OutOrStdout()
			if include {
				fmt.Fprintf(out, "%s %s\n", resp.Proto, resp.Status)
				keys := make([]string, 0, len(resp.Header))
				for key := range resp.Header {
					keys = append(keys, key)
				}
				sort.Strings(keys)
				for _, key := range keys {
					for _, value := range resp.Header[key] {
						fmt.Fprintf(out, "%s: %s\n", key, value)
					}
				}
				fmt.Fprintln(out)
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "status: %d\n", resp.StatusCode)
			}

			if _, err := io.Copy(out, resp.Body); err != nil {
				return fmt.Errorf("read response body: %w", err)
			}

			if failOn && !resp.IsSuccess() {
				return fmt.Errorf("request failed with status %d", resp.StatusCode)
			}
			return nil
		},
	}

	req.register(cmd.Flags(), "GET")
	cmd.Flags().BoolVarP(&include, "include", "i", false, "print the status line and headers before the body")
	cmd.Flags().BoolVar(&failOn, "fail", false, "exit non-zero when the status is not a success")

	return cmd
}
