package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/peerflex/peerflex/internal/backend"
	"github.com/peerflex/peerflex/internal/config"
	"github.com/peerflex/peerflex/internal/profile"
	"github.com/peerflex/peerflex/internal/services"
	"github.com/peerflex/peerflex/internal/store"
)

// env bundles what every command needs: the backend client with any
// persisted session installed, the profile store, and a logger.
type env struct {
	client *backend.Client
	db     *store.DB
	logger *zap.Logger
}

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	e, cleanup, err := setup(profileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch args[0] {
	case "login":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: peerflexctl login <email> <password>")
			os.Exit(1)
		}
		cmdLogin(ctx, e, args[1], args[2])
	case "logout":
		cmdLogout(ctx, e)
	case "whoami":
		cmdWhoami(e, *jsonFlag)
	case "events":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: peerflexctl events <list|register|ticket> [event-id]")
			os.Exit(1)
		}
		cmdEvents(ctx, e, args[1:], *jsonFlag)
	case "connections":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: peerflexctl connections <list|send|accept|reject|withdraw> [user-id]")
			os.Exit(1)
		}
		cmdConnections(ctx, e, args[1:], *jsonFlag)
	case "locate":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: peerflexctl locate <query>")
			os.Exit(1)
		}
		cmdLocate(ctx, e, args[1], *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: peerflexctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  login <email> <password>      Sign in and persist the session")
	fmt.Fprintln(os.Stderr, "  logout                        Sign out and clear the session")
	fmt.Fprintln(os.Stderr, "  whoami                        Show the signed-in user")
	fmt.Fprintln(os.Stderr, "  events list                   List upcoming events")
	fmt.Fprintln(os.Stderr, "  events register <event-id>    Register for an event")
	fmt.Fprintln(os.Stderr, "  events ticket <event-id>      Print a check-in QR ticket")
	fmt.Fprintln(os.Stderr, "  connections list              List pending requests")
	fmt.Fprintln(os.Stderr, "  connections send <user-id>    Send a connection request")
	fmt.Fprintln(os.Stderr, "  connections accept <user-id>  Accept a request")
	fmt.Fprintln(os.Stderr, "  connections reject <user-id>  Reject a request")
	fmt.Fprintln(os.Stderr, "  connections withdraw <user-id> Withdraw a sent request")
	fmt.Fprintln(os.Stderr, "  locate <query>                Search for a place")
}

func setup(profileName string) (*env, func(), error) {
	if err := profile.EnsureDir(profileName); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(profile.ConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load config (run peerflex once to create it): %w", err)
	}

	logger := zap.NewNop()
	client := backend.NewClient(cfg.BackendURL, cfg.AnonKey, logger)

	db, err := store.Open(profile.AppDBPath(profileName))
	if err != nil {
		return nil, nil, err
	}
	if _, err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	saved, err := db.LoadSession()
	if err == nil && saved != nil && !saved.Expired() {
		client.SetSession(saved)
	}

	e := &env{client: client, db: db, logger: logger}
	return e, func() { _ = db.Close() }, nil
}

func cmdLogin(ctx context.Context, e *env, email, password string) {
	session, err := e.client.SignIn(ctx, email, password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := e.db.SaveSession(*session); err != nil {
		fmt.Fprintf(os.Stderr, "warning: session not persisted: %v\n", err)
	}
	fmt.Printf("Signed in as %s\n", session.Email)
}

func cmdLogout(ctx context.Context, e *env) {
	if err := e.client.SignOut(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: remote sign-out failed: %v\n", err)
	}
	if err := e.db.ClearSession(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Signed out.")
}

func cmdWhoami(e *env, jsonOut bool) {
	s := e.client.CurrentSession()
	if s == nil {
		fmt.Println("Not signed in.")
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(map[string]string{"user_id": s.UserID, "email": s.Email})
		return
	}
	fmt.Printf("User:  %s\n", s.UserID)
	fmt.Printf("Email: %s\n", s.Email)
}

func cmdEvents(ctx context.Context, e *env, args []string, jsonOut bool) {
	svc := services.NewEventService(e.client, e.logger)

	switch args[0] {
	case "list":
		events, err := svc.ListEvents(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if jsonOut {
			outputJSON(events)
			return
		}
		if len(events) == 0 {
			fmt.Println("No upcoming events.")
			return
		}
		for _, ev := range events {
			spots := "open"
			if ev.Capacity > 0 {
				spots = fmt.Sprintf("%d/%d", ev.AttendeeCount, ev.Capacity)
			}
			fmt.Printf("%-8s %-30s %-20s %s (%s)\n", ev.ID, ev.Title, ev.Location, ev.StartsAt.Format("Jan 02 15:04"), spots)
		}
	case "register":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: peerflexctl events register <event-id>")
			os.Exit(1)
		}
		reg, err := svc.Register(ctx, args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Registered. Ticket: %s\n", reg.ID)
	case "ticket":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: peerflexctl events ticket <event-id>")
			os.Exit(1)
		}
		reg, err := svc.MyRegistration(ctx, args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		qr, err := svc.TicketQR(reg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(qr)
	default:
		fmt.Fprintf(os.Stderr, "unknown events subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func cmdConnections(ctx context.Context, e *env, args []string, jsonOut bool) {
	svc := services.NewConnectionService(e.client, e.logger)

	report := func(st services.ConnectionStatus, err error) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if jsonOut {
			outputJSON(st)
			return
		}
		fmt.Printf("State: %s\n", st.State)
	}

	switch args[0] {
	case "list":
		pending, err := svc.ListPending(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if jsonOut {
			outputJSON(pending)
			return
		}
		if len(pending) == 0 {
			fmt.Println("No pending requests.")
			return
		}
		for _, p := range pending {
			fmt.Printf("%-8s %s\n", p.RequestID, p.State)
		}
	case "send":
		report(svc.SendRequest(ctx, requireArg(args, "send")))
	case "accept":
		report(svc.AcceptRequest(ctx, requireArg(args, "accept")))
	case "reject":
		report(svc.RejectRequest(ctx, requireArg(args, "reject")))
	case "withdraw":
		report(svc.WithdrawRequest(ctx, requireArg(args, "withdraw")))
	default:
		fmt.Fprintf(os.Stderr, "unknown connections subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func cmdLocate(ctx context.Context, e *env, query string, jsonOut bool) {
	svc := services.NewLocationService(nil, 5*time.Second, e.logger)
	places, err := svc.Search(ctx, query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(places)
		return
	}
	if len(places) == 0 {
		fmt.Println("No results.")
		return
	}
	for _, p := range places {
		fmt.Printf("%-50s %9.5f %9.5f\n", p.Name, p.Lat, p.Lon)
	}
}

func requireArg(args []string, cmd string) string {
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: peerflexctl connections %s <user-id>\n", cmd)
		os.Exit(1)
	}
	return args[1]
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
