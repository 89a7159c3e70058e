package main

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <record-id-or-user-id>",
	Short: "Show a retirement record with its response log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := httpGet(flagAPI + "/retirements/" + args[0])
		if err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate retirement counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := httpGet(flagAPI + "/stats")
		if err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}
