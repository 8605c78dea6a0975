package cmd

import (
	"fmt"

	"github.com/habedi/rebaton/pkg/validation"
	"github.com/spf13/cobra"
)

func notificationsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notif"},
		Short:   "Read your notifications",
	}
	cmd.AddCommand(listNotificationsCmd(c), readNotificationCmd(c))
	return cmd
}

func listNotificationsCmd(c *cli) *cobra.Command {
	var unread bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := c.requireSession(ctx); err != nil {
				return err
			}
			list, err := c.client.Notifications(ctx, unread)
			if err != nil {
				return userError("Failed to fetch notifications", err)
			}
			if len(list) == 0 {
				cmd.Println("No notifications.")
				return nil
			}

			table := newTable(cmd.OutOrStdout(), "ID", "Date", "Title", "Message", "Read")
			for _, n := range list {
				read := "no"
				if n.Read {
					read = "yes"
				}
				table.Append([]string{n.ID, formatDate(&n.CreatedAt), singleLine(n.Title), singleLine(n.Message), read})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().BoolVarP(&unread, "unread", "u", false, "Only show unread notifications")
	return cmd
}

func readNotificationCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "read <notification-id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateID("notification", args[0]); err != nil {
				return validationError(err)
			}
			ctx := cmd.Context()
			if err := c.requireSession(ctx); err != nil {
				return err
			}
			if err := c.client.MarkNotificationRead(ctx, args[0]); err != nil {
				return userError(fmt.Sprintf("Failed to update notification %s", args[0]), err)
			}
			cmd.Printf("Notification %s marked as read.\n", args[0])
			return nil
		},
	}
}
