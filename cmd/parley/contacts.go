package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/aretw0/parley/internal/cli"
	"github.com/aretw0/parley/pkg/contacts"
	"github.com/spf13/cobra"
)

var contactsCmd = &cobra.Command{
	Use:     "contacts",
	Aliases: []string{"contact"},
	Short:   "Manage the contact registry",
}

var contactsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all contacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		list := rt.Engine.ListContacts()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd, list)
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No contacts found.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPHONE")
		for _, c := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Name, c.Phone)
		}
		return w.Flush()
	},
}

var contactsAddCmd = &cobra.Command{
	Use:   "add <name> <phone>",
	Short: "Add a contact",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		c, err := rt.Engine.AddContact(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", c.ID, c.Phone)
		return nil
	},
}

var contactsUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change the name and/or phone of a contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ch contacts.Changes
		if cmd.Flags().Changed("name") {
			name, _ := cmd.Flags().GetString("name")
			ch.Name = &name
		}
		if cmd.Flags().Changed("phone") {
			phone, _ := cmd.Flags().GetString("phone")
			ch.Phone = &phone
		}
		if ch.Name == nil && ch.Phone == nil {
			return fmt.Errorf("nothing to update: pass --name and/or --phone")
		}

		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		c, err := rt.Engine.UpdateContact(cmd.Context(), args[0], ch)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s: %s (%s)\n", c.ID, c.Name, c.Phone)
		return nil
	},
}

var contactsRmCmd = &cobra.Command{
	Use:   "rm <id>...",
	Short: "Remove one or more contacts",
	Long:  `Removes contacts from the registry. Their conversation records stay until 'parley forget'.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		failed := 0
		for _, id := range args {
			if _, err := rt.Engine.DeleteContact(cmd.Context(), id); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error removing '%s': %v\n", id, err)
				failed++
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed contact '%s'\n", id)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d contacts not removed", failed, len(args))
		}
		return nil
	},
}

var contactsImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import contacts from a YAML file",
	Long: `Reads a list of {name, phone} entries, either bare or under a top-level
"contacts:" key. Invalid and duplicate entries are reported and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		res, err := cli.ImportContacts(cmd.Context(), rt.Engine, f)
		for _, s := range res.Skipped {
			fmt.Fprintf(cmd.ErrOrStderr(), "Skipped %q (%s): %s\n", s.Name, s.Phone, s.Reason)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d contacts, skipped %d\n", len(res.Added), len(res.Skipped))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(contactsCmd)
	contactsCmd.AddCommand(contactsLsCmd, contactsAddCmd, contactsUpdateCmd, contactsRmCmd, contactsImportCmd)

	contactsLsCmd.Flags().Bool("json", false, "Print contacts as JSON")
	contactsUpdateCmd.Flags().String("name", "", "New display name")
	contactsUpdateCmd.Flags().String("phone", "", "New phone number")
}
