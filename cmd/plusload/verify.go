package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"plusload/pkg/capture"
)

var verifyCmd = &cobra.Command{
	Use:   "verify-capture <dir>",
	Short: "Verify an archived capture directory",
	Long:  "Re-check every captured API payload: metadata integrity, SHA-256 digests, and whether the payloads still parse under the current schema",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		result, err := capture.VerifyCaptureSchema(args[0])
		cobra.CheckErr(err)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Endpoint", "Captures"})
		endpoints := make([]string, 0, len(result.ByEndpoint))
		for endpoint := range result.ByEndpoint {
			endpoints = append(endpoints, endpoint)
		}
		sort.Strings(endpoints)
		for _, endpoint := range endpoints {
			t.AppendRow(table.Row{endpoint, result.ByEndpoint[endpoint]})
		}
		t.AppendFooter(table.Row{"Checked", result.Checked})
		t.SetStyle(table.StyleLight)
		t.Render()

		if !result.OK() {
			for _, verr := range result.Errors {
				fmt.Fprintln(os.Stderr, verr)
			}
			fmt.Fprintf(os.Stderr, "%d of %d captures failed verification\n", len(result.Errors), result.Checked)
			os.Exit(1)
		}
		fmt.Println("all captures verified")
	},
}
