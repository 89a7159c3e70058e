package main

import (
	"github.com/spf13/cobra"
)

var erroredCmd = &cobra.Command{
	Use:   "errored [record-id]",
	Short: "List errored retirements, or show one with its response log",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := flagAPI + "/errored"
		if len(args) == 1 {
			path += "/" + args[0]
		}
		resp, err := httpGet(path)
		if err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}
