package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
)

var requestCmd = &cobra.Command{
	Use:   "request <username>",
	Short: "Request retirement of a user account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username := args[0]
		if username == "" {
			return errors.New("username must not be empty")
		}
		body, err := json.Marshal(map[string]string{"username": username})
		if err != nil {
			return err
		}
		resp, err := httpPost(flagAPI+"/retirements", body)
		if err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}
