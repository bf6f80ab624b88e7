package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"convokey/internal/domain"
)

// members <group> [user...]: list members, or replace them when users are given.
func membersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "members <group> [user...]",
		Short: "Show a group's members and who lacks the group key, or set the members",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			group := domain.GroupID(args[0])

			if len(args) > 1 {
				users := make([]domain.UserID, 0, len(args)-1)
				for _, u := range args[1:] {
					users = append(users, domain.UserID(u))
				}
				if err := a.Directory.SetGroupMembers(cmd.Context(), group, users); err != nil {
					return err
				}
			}

			members, err := a.Directory.ListGroupMembers(cmd.Context(), group)
			if err != nil {
				return err
			}
			missing, err := a.Directory.MembersMissingGroupKey(cmd.Context(), group)
			if err != nil {
				return err
			}
			fmt.Printf("Members: %s\n", joinUsers(members))
			fmt.Printf("Without key: %s\n", joinUsers(missing))
			return nil
		},
	}
}

func joinUsers(users []domain.UserID) string {
	if len(users) == 0 {
		return "-"
	}
	parts := make([]string, len(users))
	for i, u := range users {
		parts[i] = u.String()
	}
	return strings.Join(parts, ", ")
}
