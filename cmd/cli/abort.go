package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var flagAbortReason string

var abortCmd = &cobra.Command{
	Use:   "abort <record-id>",
	Short: "Abort an in-flight retirement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := json.Marshal(map[string]string{"reason": flagAbortReason})
		if err != nil {
			return err
		}
		resp, err := httpPost(flagAPI+"/retirements/"+args[0]+"/abort", body)
		if err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

func init() {
	abortCmd.Flags().StringVar(&flagAbortReason, "reason", "aborted by operator", "abort reason recorded on the retirement")
}
