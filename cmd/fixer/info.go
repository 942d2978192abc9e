package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the service account identity",
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	client, err := newClient(cfg, log)
	if err != nil {
		return err
	}

	me, err := client.CurrentUser(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Println("ID:   ", me.ID)
	fmt.Println("Name: ", me.Name)
	fmt.Println("Login:", me.Login)
	return nil
}
