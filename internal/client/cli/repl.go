package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for REPL output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to.
type execIface interface {
	AddVehicle(ctx context.Context, args []string) error
	AddTrip(ctx context.Context, args []string) error
	AddVisit(ctx context.Context, args []string) error
	AddExpense(ctx context.Context, args []string) error
	AddFueling(ctx context.Context, args []string) error
	AddType(ctx context.Context, args []string) error
	AddUser(ctx context.Context, args []string) error
	Login(ctx context.Context, args []string) error
	Logout(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Edit(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Sync(ctx context.Context, args []string) error
	Status(ctx context.Context, args []string) error
}

const helpText = `Available commands:
  vehicle                         add a vehicle
  trip <vehicle> [user email]     add a trip
  visit <trip>                    add a visit to a trip
  expense <trip>                  add an expense (optional receipt file)
  fueling <trip> [vehicle]        add a fueling (optional photo file)
  type <visit|expense> <name>     add a visit or expense type
  user                            register a local user
  login | logout                  offline login with a local user
  list <collection> [trip]        list records
  show <collection> <id>          show one record
  edit <collection> <id>          change fields of a record
  delete <collection> <id>        delete a record
  sync                            run a sync pass now
  status                          show connectivity and pending work
  exit | quit`

// runREPL reads commands from scanner until EOF or exit. Handler errors are
// printed and the loop carries on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	commands := map[string]func(context.Context, []string) error{
		"vehicle": a.AddVehicle,
		"trip":    a.AddTrip,
		"visit":   a.AddVisit,
		"expense": a.AddExpense,
		"fueling": a.AddFueling,
		"type":    a.AddType,
		"user":    a.AddUser,
		"login":   a.Login,
		"logout":  a.Logout,
		"list":    a.List,
		"l":       a.List,
		"show":    a.Show,
		"edit":    a.Edit,
		"delete":  a.Delete,
		"sync":    a.Sync,
		"status":  a.Status,
	}

	for {
		printlnFn(fmt.Sprintf("tk %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			printlnFn(helpText)
			continue
		case "exit", "quit":
			printlnFn("Bye!")
			return
		}

		handler, ok := commands[cmd]
		if !ok {
			printlnFn("Unknown command:", cmd)
			continue
		}
		if err := handler(ctx, args); err != nil {
			printlnFn("error:", err)
		}
	}
}
