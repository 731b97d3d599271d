package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/pipeline"
	"github.com/spf13/cobra"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one ingestion cycle and print the events",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		evs, err := rt.Engine.Poll(cmd.Context())
		if err != nil {
			return err
		}
		return printEvents(cmd, evs)
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <target> [text...]",
	Short: "Send an SMS, an image (MMS) and/or an audio file (voice)",
	Long: `Sends to a contact ID or phone number. Parts go out in order: the text,
then the image with the text as caption, then the audio.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		image, _ := cmd.Flags().GetString("image")
		audio, _ := cmd.Flags().GetString("audio")

		content := pipeline.Content{Text: strings.Join(args[1:], " ")}
		var err error
		if image != "" {
			if content.Image, err = pipeline.LoadAttachment(image); err != nil {
				return err
			}
		}
		if audio != "" {
			if content.Audio, err = pipeline.LoadAttachment(audio); err != nil {
				return err
			}
		}

		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		evs, err := rt.Engine.Send(cmd.Context(), args[0], content)
		if perr := printEvents(cmd, evs); perr != nil {
			return perr
		}
		return err
	},
}

var menuCmd = &cobra.Command{
	Use:   "menu <target> <option>...",
	Short: "Send a numbered menu and optionally wait for the choice",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		m := parley.Menu{Options: args[1:]}
		m.Header, _ = flags.GetString("header")
		m.Footer, _ = flags.GetString("footer")
		m.OmitHeader, _ = flags.GetBool("no-header")
		m.OmitFooter, _ = flags.GetBool("no-footer")
		m.NumberFormat, _ = flags.GetString("format")
		m.Timeout, _ = flags.GetDuration("timeout")
		m.Wait, _ = flags.GetBool("wait")

		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		if m.Wait {
			go func() {
				if err := rt.Engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Poll loop stopped", "err", err)
				}
			}()
		}

		resp, err := rt.Engine.SendMenu(ctx, args[0], m)
		if err != nil {
			return err
		}
		if resp == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Menu sent.")
			return nil
		}
		return printJSON(cmd, resp)
	},
}

func printEvents(cmd *cobra.Command, evs []domain.Event) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		if evs == nil {
			evs = []domain.Event{}
		}
		return printJSON(cmd, evs)
	}
	out := cmd.OutOrStdout()
	if len(evs) == 0 {
		fmt.Fprintln(out, "No events.")
	}
	for _, ev := range evs {
		fmt.Fprintln(out, describe(ev))
	}
	return nil
}

func describe(ev domain.Event) string {
	ts := ev.Base().Timestamp.Format(time.TimeOnly)
	switch e := ev.(type) {
	case *domain.MessageReceived:
		return fmt.Sprintf("%s  received   %s: %q", ts, who(e.ContactID, e.Phone), e.Text)
	case *domain.ReplyParsed:
		return fmt.Sprintf("%s  parsed     %s [%s/%s] = %v", ts, who(e.ContactID, e.Phone), e.Key, e.Kind, e.Value)
	case *domain.MessageSent:
		return fmt.Sprintf("%s  sent       %s via %s", ts, who(e.ContactID, e.Phone), e.Channel)
	case *domain.ExpectationExpired:
		return fmt.Sprintf("%s  expired    %s [%s]", ts, who(e.ContactID, e.Phone), e.Key)
	}
	return fmt.Sprintf("%s  %s", ts, ev.Base().Type)
}

func who(contactID, phone string) string {
	if contactID != "" {
		return contactID
	}
	return phone
}

func init() {
	rootCmd.AddCommand(pollCmd, sendCmd, menuCmd)

	pollCmd.Flags().Bool("json", false, "Print events as JSON")

	sendCmd.Flags().String("image", "", "Image file to send as MMS")
	sendCmd.Flags().String("audio", "", "Audio file to send as voice")
	sendCmd.Flags().Bool("json", false, "Print events as JSON")

	menuCmd.Flags().String("header", "", "Header line (default \""+parley.DefaultMenuHeader+"\")")
	menuCmd.Flags().String("footer", "", "Footer line (default \""+parley.DefaultMenuFooter+"\")")
	menuCmd.Flags().Bool("no-header", false, "Omit the header")
	menuCmd.Flags().Bool("no-footer", false, "Omit the footer")
	menuCmd.Flags().String("format", "", "Line format with {n} and {option}")
	menuCmd.Flags().Duration("timeout", parley.DefaultMenuTimeout, "How long the choice is awaited (5s to 1h)")
	menuCmd.Flags().Bool("wait", false, "Poll until the reply arrives or the timeout elapses")
}
