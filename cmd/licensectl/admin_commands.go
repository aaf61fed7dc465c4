package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"licsrv/internal/middleware"
)

func newAdminCommand() *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative credentials",
	}
	adminCmd.AddCommand(newAdminHashKeyCommand())
	return adminCmd
}

func newAdminHashKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key [KEY]",
		Short: "Print the bcrypt hash to put in security.admin_key_hash",
		Long:  "Hashes KEY, or the first line of stdin when KEY is omitted, so the key stays out of shell history.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no key given on the command line or stdin")
				}
				key = strings.TrimRight(line, "\r\n")
			}
			if len(key) < 16 {
				return errors.New("admin key must be at least 16 characters")
			}

			hash, err := middleware.HashAdminKey(key)
			if err != nil {
				return err
			}
			printSuccess(cmd, "Set LICSRV_SECURITY_ADMIN_KEY_HASH or security.admin_key_hash to:")
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
