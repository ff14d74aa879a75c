package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
	Long:  `Add, remove, and list the users allowed to call the bridge.`,
}

var userAddCmd = &cobra.Command{
	Use:   "add [username] [password]",
	Short: "Add a new user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := getUserStore()
		if err != nil {
			return err
		}

		username := args[0]
		if err := store.Add(username, args[1]); err != nil {
			return err
		}

		if err := store.Save(); err != nil {
			return fmt.Errorf("failed to save user: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "User %s created successfully.\n", username)
		return nil
	},
}

var userRmCmd = &cobra.Command{
	Use:   "rm [username]",
	Short: "Remove a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := getUserStore()
		if err != nil {
			return err
		}

		username := args[0]
		if !store.Delete(username) {
			return fmt.Errorf("user %s does not exist", username)
		}

		if err := store.Save(); err != nil {
			return fmt.Errorf("failed to save changes: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "User %s removed.\n", username)
		return nil
	},
}

var userLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all users",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := getUserStore()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		users := store.List()
		if len(users) == 0 {
			fmt.Fprintln(out, "No users found.")
			return nil
		}

		fmt.Fprintln(out, "Users:")
		for _, u := range users {
			fmt.Fprintln(out, "-", u)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userRmCmd)
	userCmd.AddCommand(userLsCmd)
}
