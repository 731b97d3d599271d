package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aretw0/parley/internal/presentation/tui"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/spf13/cobra"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Inspect and clear awaited replies",
}

var pendingLsCmd = &cobra.Command{
	Use:   "ls <target>",
	Short: "List live expectations of a contact or phone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		pending, err := rt.Engine.Pending(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No pending expectations.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tKIND\tEXPIRES IN")
		for _, e := range pending {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.Key, e.Kind, time.Until(e.ExpiresAt).Round(time.Second))
		}
		return w.Flush()
	},
}

var pendingClearCmd = &cobra.Command{
	Use:   "clear <target>",
	Short: "Remove one expectation (--key) or all of them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")

		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		removed, err := rt.Engine.ClearPending(cmd.Context(), args[0], key)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d: %s\n", len(removed), strings.Join(removed, ", "))
		return nil
	},
}

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Read and write per-conversation context",
}

var contextGetCmd = &cobra.Command{
	Use:   "get <target>",
	Short: "Print the context as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		values, err := rt.Engine.GetContext(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, values)
	},
}

var contextSetCmd = &cobra.Command{
	Use:   "set <target> key=value...",
	Short: "Merge values into the context (JSON values are decoded)",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		replace, _ := cmd.Flags().GetBool("replace")
		values, err := parseAssignments(args[1:])
		if err != nil {
			return err
		}

		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		var out map[string]any
		if replace {
			out, err = rt.Engine.ReplaceContext(cmd.Context(), args[0], values)
		} else {
			out, err = rt.Engine.SetContext(cmd.Context(), args[0], values)
		}
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var contextClearCmd = &cobra.Command{
	Use:   "clear <target>",
	Short: "Empty the context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()
		return rt.Engine.ClearContext(cmd.Context(), args[0])
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [target]",
	Short: "Show a conversation record, or list all records",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		if len(args) == 0 {
			keys, err := rt.Engine.Conversations(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, keys)
			}
			if len(keys) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No conversations found.")
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), "- "+k)
			}
			return nil
		}

		conv, err := rt.Engine.Conversation(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd, conv)
		}

		var contact *domain.Contact
		if conv.ContactID != "" {
			if c, err := rt.Engine.Contact(conv.ContactID); err == nil {
				contact = &c
			}
		}
		render, err := tui.NewRenderer(tui.IsTerminal(os.Stdout))
		if err != nil {
			return err
		}
		out, err := render(tui.ConversationMarkdown(conv, contact, time.Now()))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget <target>...",
	Short: "Delete conversation records",
	Long:  `Deletes the record of a contact or phone, or an orphaned key left by a removed contact.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		var errs []error
		for _, t := range args {
			if err := rt.Engine.Forget(cmd.Context(), t); err != nil {
				errs = append(errs, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forgot '%s'\n", t)
		}
		return errors.Join(errs...)
	},
}

// parseAssignments turns key=value pairs into a context map. Values that
// parse as JSON keep their type; anything else is a string.
func parseAssignments(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, raw, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("expected key=value, got %q", p)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[strings.TrimSpace(key)] = v
	}
	return out, nil
}

func init() {
	rootCmd.AddCommand(pendingCmd, contextCmd, inspectCmd, forgetCmd)
	pendingCmd.AddCommand(pendingLsCmd, pendingClearCmd)
	contextCmd.AddCommand(contextGetCmd, contextSetCmd, contextClearCmd)

	pendingClearCmd.Flags().String("key", "", "Only remove this key")
	contextSetCmd.Flags().Bool("replace", false, "Replace the whole context instead of merging")
	inspectCmd.Flags().Bool("json", false, "Print the raw record")
}
