package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"library-circulation/circulation"
)

var manager *circulation.Manager

// readPassword securely reads a password with masking.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println() // Add newline after password input
	return strings.TrimSpace(string(bytePassword)), nil
}

// authenticate prompts for the member's password and verifies it before a
// circulation operation runs on their behalf.
func authenticate(memberKey string) error {
	password, err := readPassword("Enter your password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	return manager.AuthenticateMember(memberKey, password)
}

func main() {
	root := &cobra.Command{
		Use:           "library",
		Short:         "Library circulation desk",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := circulation.ConfigFromEnv()
			if err != nil {
				return err
			}
			manager, err = circulation.NewManager(cfg)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			manager.Subscribe(circulation.NewWriterNotifier("circulation-desk", cmd.OutOrStdout()))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return manager.Close()
		},
	}

	root.AddCommand(
		addTitleCmd(), removeTitleCmd(), listTitlesCmd(), searchCmd(),
		addMemberCmd(), listMembersCmd(), setStatusCmd(), resetPasswordCmd(),
		borrowCmd(), returnCmd(), historyCmd(), overdueCmd(),
		reserveCmd(), cancelCmd(), queueCmd(), expireCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func addTitleCmd() *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "add-title KEY NAME AUTHOR",
		Short: "Add a circulating copy to the catalog",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := manager.AddTitle(args[0], args[1], args[2], year)
			if err != nil {
				return err
			}
			fmt.Printf("Added title %s: %q by %s\n", t.Key, t.Name, t.Author)
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "publication year")
	return cmd
}

func removeTitleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-title KEY",
		Short: "Remove a title from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := manager.RemoveTitle(args[0])
			if err != nil {
				return err
			}
			if !removed {
				fmt.Printf("No title with key %s\n", args[0])
				return nil
			}
			fmt.Printf("Removed title %s\n", args[0])
			return nil
		},
	}
}

func listTitlesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-titles",
		Short: "List the full catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			titles, err := manager.AllTitles()
			if err != nil {
				return err
			}
			if len(titles) == 0 {
				fmt.Println("No titles in catalog.")
				return nil
			}
			fmt.Printf("%-16s %-35s %-25s %-10s %s\n", "KEY", "NAME", "AUTHOR", "STATUS", "BORROWER")
			for _, t := range titles {
				fmt.Printf("%-16s %-35s %-25s %-10s %s\n", t.Key, t.Name, t.Author, t.Status, t.BorrowerKey)
			}
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	var field string
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search the catalog by substring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			titles, err := manager.SearchTitles(args[0], circulation.SearchField(field))
			if err != nil {
				return err
			}
			if len(titles) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			for _, t := range titles {
				fmt.Printf("%-16s %-35s %-25s %s\n", t.Key, t.Name, t.Author, t.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&field, "field", "name", "field to match: name, author or key")
	return cmd
}

func addMemberCmd() *cobra.Command {
	var class string
	cmd := &cobra.Command{
		Use:   "add-member NAME EMAIL",
		Short: "Register a member",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(fmt.Sprintf("Enter password for %s: ", args[0]))
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			if password == "" {
				return errors.New("password cannot be empty")
			}
			m, err := manager.AddMember(args[0], args[1], circulation.MemberClass(strings.ToUpper(class)), password)
			if err != nil {
				return err
			}
			fmt.Printf("Added member %q with key %s (class %s, limit %d)\n", m.Name, m.Key, m.Class, m.BorrowLimit())
			return nil
		},
	}
	cmd.Flags().StringVar(&class, "class", "general", "member class: student, faculty, staff or general")
	return cmd
}

func listMembersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-members",
		Short: "List registered members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			members, err := manager.AllMembers()
			if err != nil {
				return err
			}
			if len(members) == 0 {
				fmt.Println("No members registered.")
				return nil
			}
			fmt.Printf("%-16s %-25s %-10s %-10s %s\n", "KEY", "NAME", "CLASS", "STATUS", "EMAIL")
			for _, m := range members {
				fmt.Printf("%-16s %-25s %-10s %-10s %s\n", m.Key, m.Name, m.Class, m.Status, m.Email)
			}
			return nil
		},
	}
}

func setStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-status MEMBER STATUS",
		Short: "Change a member's status (active, suspended, expired, blocked)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := circulation.MemberStatus(strings.ToUpper(args[1]))
			if err := manager.SetMemberStatus(args[0], status); err != nil {
				return err
			}
			fmt.Printf("Member %s is now %s\n", args[0], status)
			return nil
		},
	}
}

func resetPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password MEMBER",
		Short: "Reset a member's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			member, err := manager.GetMember(args[0])
			if err != nil {
				return err
			}
			password, err := readPassword(fmt.Sprintf("Enter new password for %s: ", member.Name))
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			if password == "" {
				return errors.New("password cannot be empty")
			}
			if err := manager.ResetMemberPassword(member.Key, password); err != nil {
				return err
			}
			fmt.Printf("Password reset for %s (%s)\n", member.Name, member.Key)
			return nil
		},
	}
}

func borrowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "borrow MEMBER TITLE",
		Short: "Borrow a title",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := authenticate(args[0]); err != nil {
				return err
			}
			loan, err := manager.Borrow(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Loan %s created, due %s\n", loan.Key, loan.DueDate.Format("2006-01-02"))
			return nil
		},
	}
}

func returnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "return MEMBER TITLE",
		Short: "Return a borrowed title",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			returned, err := manager.Return(args[0], args[1])
			if err != nil {
				return err
			}
			if !returned {
				fmt.Println("Nothing to return: no open loan matches.")
				return nil
			}
			fmt.Println("Returned.")
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history MEMBER",
		Short: "Show a member's full borrowing history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loans := manager.HistoryForMember(args[0])
			if len(loans) == 0 {
				fmt.Println("No loans on record.")
				return nil
			}
			printLoans(loans)
			return nil
		},
	}
}

func overdueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List open loans past their due date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loans := manager.OverdueLoans()
			if len(loans) == 0 {
				fmt.Println("No overdue loans.")
				return nil
			}
			printLoans(loans)
			return nil
		},
	}
}

func printLoans(loans []*circulation.Loan) {
	fmt.Printf("%-14s %-16s %-16s %-12s %-12s %-12s %s\n",
		"LOAN", "MEMBER", "TITLE", "BORROWED", "DUE", "RETURNED", "FINE")
	for _, l := range loans {
		returned := "-"
		if l.ReturnDate != nil {
			returned = l.ReturnDate.Format("2006-01-02")
		}
		fmt.Printf("%-14s %-16s %-16s %-12s %-12s %-12s %.2f\n",
			l.Key, l.MemberKey, l.TitleKey,
			l.BorrowDate.Format("2006-01-02"), l.DueDate.Format("2006-01-02"),
			returned, l.FineAmount)
	}
}

func reserveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reserve MEMBER TITLE",
		Short: "Join the waiting list for a borrowed title",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := authenticate(args[0]); err != nil {
				return err
			}
			r, err := manager.Reserve(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Reservation %s created, expires %s\n", r.Key, r.ExpiryDate.Format("2006-01-02"))
			return nil
		},
	}
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel RESERVATION",
		Short: "Cancel an active reservation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if manager.CancelReservation(args[0]) {
				fmt.Printf("Reservation %s cancelled\n", args[0])
			} else {
				fmt.Printf("No active reservation %s\n", args[0])
			}
			return nil
		},
	}
}

func queueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue TITLE",
		Short: "Show the waiting list for a title, front first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queue := manager.QueueForTitle(args[0])
			if len(queue) == 0 {
				fmt.Println("No active reservations.")
				return nil
			}
			for i, r := range queue {
				fmt.Printf("%2d. %s member %s, reserved %s, expires %s\n",
					i+1, r.Key, r.MemberKey,
					r.ReservationDate.Format("2006-01-02"), r.ExpiryDate.Format("2006-01-02"))
			}
			return nil
		},
	}
}

func expireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Retire reservations past their expiry date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager.ProcessExpiredReservations()
			fmt.Println("Expiry sweep complete.")
			return nil
		},
	}
}
