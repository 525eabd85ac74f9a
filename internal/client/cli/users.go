package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/dmitrijs2005/tripkeeper/internal/client/services"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
)

func (a *App) AddUser(ctx context.Context, args []string) error {
	email, err := GetSimpleText(a.reader, "Email", a.out)
	if err != nil {
		return err
	}
	username, err := GetSimpleText(a.reader, "Username", a.out)
	if err != nil {
		return err
	}
	role, err := GetSimpleText(a.reader, "Role (driver or admin, empty for driver)", a.out)
	if err != nil {
		return err
	}
	password, err := GetPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	u, err := a.users.Register(ctx, email, username, password, role)
	if err != nil {
		return err
	}
	a.printf("user %s registered locally\n", u.Email)
	return nil
}

func (a *App) Login(ctx context.Context, args []string) error {
	login := ""
	if len(args) > 0 {
		login = args[0]
	} else {
		var err error
		if login, err = GetSimpleText(a.reader, "Email or username", a.out); err != nil {
			return err
		}
	}
	password, err := GetPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	u, err := a.users.OfflineLogin(ctx, login, password)
	if err != nil {
		return err
	}
	a.setCurrent(u)
	a.printf("logged in as %s\n", u.Username)
	return nil
}

func (a *App) Logout(ctx context.Context, args []string) error {
	if err := a.users.Logout(ctx); err != nil {
		return err
	}
	a.setCurrent(nil)
	a.println("logged out")
	return nil
}

func (a *App) listUsers(ctx context.Context) error {
	list, err := a.users.List(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tUSERNAME\tROLE\tSTATE\tREMOTE")
	for _, u := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", u.Email, u.Username, u.Role, u.State, u.RemoteID)
	}
	return tw.Flush()
}

func (a *App) showUser(ctx context.Context, email string) error {
	list, err := a.users.List(ctx)
	if err != nil {
		return err
	}
	for _, u := range list {
		if u.Email != common.NormalizeEmail(email) {
			continue
		}
		b, err := json.MarshalIndent(map[string]any{
			"email": u.Email, "username": u.Username, "role": u.Role,
			"state": u.State, "remoteId": u.RemoteID, "lastLoginAt": u.LastLoginAt,
		}, "", "  ")
		if err != nil {
			return err
		}
		a.println(string(b))
		return nil
	}
	return common.ErrorNotFound
}

// editUser accepts username and role fields; a "password" field asks for a
// new password.
func (a *App) editUser(ctx context.Context, email string) error {
	fields, err := a.fields("Enter changed fields (username, role, password=yes)")
	if err != nil {
		return err
	}
	var p services.UserPatch
	if v, ok := fields["username"]; ok && v != nil {
		s := fmt.Sprint(v)
		p.Username = &s
	}
	if v, ok := fields["role"]; ok && v != nil {
		s := fmt.Sprint(v)
		p.Role = &s
	}
	if _, ok := fields["password"]; ok {
		if p.Password, err = GetPassword(a.out); err != nil {
			return err
		}
		defer common.WipeByteArray(p.Password)
	}
	if err := a.users.Update(ctx, email, p); err != nil {
		return err
	}
	a.println("updated", email)
	return nil
}
