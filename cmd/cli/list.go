package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var (
	flagListState  string
	flagListLimit  int
	flagListOffset int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List retirement records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if flagListState != "" {
			q.Set("state", flagListState)
		}
		q.Set("limit", fmt.Sprint(flagListLimit))
		q.Set("offset", fmt.Sprint(flagListOffset))

		resp, err := httpGet(flagAPI + "/retirements?" + q.Encode())
		if err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&flagListState, "state", "", "filter by current state")
	listCmd.Flags().IntVar(&flagListLimit, "limit", 50, "page size")
	listCmd.Flags().IntVar(&flagListOffset, "offset", 0, "page offset")
}
