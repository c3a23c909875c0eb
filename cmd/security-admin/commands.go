package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/koor-fr/security-component/internal/pkg/crypto"
	"github.com/koor-fr/security-component/internal/service"
)

var pastTense = map[string]string{
	"enable":  "enabled",
	"disable": "disabled",
	"assign":  "assigned",
	"revoke":  "revoked",
}

// cli runs the user, role and verify commands against the directories.
type cli struct {
	users *service.UserService
	roles *service.RoleService
	in    *bufio.Reader
	fd    int
	out   io.Writer
}

func (c *cli) user(ctx context.Context, action string, args []string) error {
	if action == "create" {
		return c.createUser(ctx, args)
	}
	if len(args) != 1 {
		return errUsage
	}

	user, err := c.users.GetByLogin(ctx, args[0])
	if err != nil {
		return err
	}

	switch action {
	case "get":
		if err := c.users.LoadRoles(ctx, user); err != nil {
			return err
		}
		tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "ID:\t%d\n", user.ID)
		fmt.Fprintf(tw, "Login:\t%s\n", user.Login)
		fmt.Fprintf(tw, "Name:\t%s\n", user.FullName())
		fmt.Fprintf(tw, "Email:\t%s\n", user.Email)
		fmt.Fprintf(tw, "Disabled:\t%t\n", user.Disabled)
		fmt.Fprintf(tw, "Connections:\t%d\n", user.ConnectionCount)
		fmt.Fprintf(tw, "Consecutive errors:\t%d\n", user.ConsecutiveErrors)
		if !user.LastConnectionAt.IsZero() {
			fmt.Fprintf(tw, "Last connection:\t%s\n", user.LastConnectionAt.Format("2006-01-02 15:04:05 MST"))
		}
		for _, role := range user.Roles {
			fmt.Fprintf(tw, "Role:\t%s\n", role.Name)
		}
		return tw.Flush()

	case "enable", "disable":
		if err := c.users.SetDisabled(ctx, user.ID, action == "disable"); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "User %s %s\n", user.Login, pastTense[action])
		return nil

	case "passwd":
		current, err := promptPassword(c.in, c.fd, c.out, "Current password")
		if err != nil {
			return err
		}
		next, err := promptNewPassword(c.in, c.fd, c.out)
		if err != nil {
			return err
		}
		if err := c.users.ChangePassword(ctx, user.ID, current, next); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Password of %s updated\n", user.Login)
		return nil

	case "delete":
		if err := c.users.Delete(ctx, user.ID); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "User %s deleted\n", user.Login)
		return nil

	default:
		return errUsage
	}
}

func (c *cli) createUser(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	login := args[0]

	fs := flag.NewFlagSet("user create", flag.ContinueOnError)
	fs.SetOutput(c.out)
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	email := fs.String("email", "", "email address")
	generate := fs.Bool("generate", false, "generate a random password instead of prompting")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	var password string
	var err error
	if *generate {
		password, err = crypto.GeneratePassword()
	} else {
		password, err = promptNewPassword(c.in, c.fd, c.out)
	}
	if err != nil {
		return err
	}

	user, err := c.users.Create(ctx, service.CreateUserInput{
		Login:     login,
		Password:  password,
		FirstName: *first,
		LastName:  *last,
		Email:     *email,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "User %s created with ID %d\n", user.Login, user.ID)
	if *generate {
		fmt.Fprintf(c.out, "Password: %s\n", password)
	}
	return nil
}

func (c *cli) role(ctx context.Context, action string, args []string) error {
	switch action {
	case "create":
		if len(args) != 1 {
			return errUsage
		}
		role, err := c.roles.Create(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Role %s created with ID %d\n", role.Name, role.ID)
		return nil

	case "list":
		roles, err := c.roles.List(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME")
		for _, role := range roles {
			fmt.Fprintf(tw, "%d\t%s\n", role.ID, role.Name)
		}
		return tw.Flush()

	case "delete":
		if len(args) != 1 {
			return errUsage
		}
		role, err := c.roles.GetByName(ctx, args[0])
		if err != nil {
			return err
		}
		if err := c.roles.Delete(ctx, role.ID); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Role %s deleted\n", role.Name)
		return nil

	case "assign", "revoke":
		if len(args) != 2 {
			return errUsage
		}
		user, err := c.users.GetByLogin(ctx, args[0])
		if err != nil {
			return err
		}
		role, err := c.roles.GetByName(ctx, args[1])
		if err != nil {
			return err
		}
		if action == "assign" {
			err = c.roles.Assign(ctx, user.ID, role.ID)
		} else {
			err = c.roles.Revoke(ctx, user.ID, role.ID)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Role %s %s for %s\n", role.Name, pastTense[action], user.Login)
		return nil

	default:
		return errUsage
	}
}

func (c *cli) verify(ctx context.Context, login string) error {
	password, err := promptPassword(c.in, c.fd, c.out, "Password")
	if err != nil {
		return err
	}

	user, err := c.users.CheckCredentials(ctx, login, password)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Credentials accepted for %s (%d connections)\n", user.Login, user.ConnectionCount)
	return nil
}
