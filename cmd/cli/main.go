package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"eventreg/cmd/buildCFG"
	"eventreg/internal/apiclient"
	"eventreg/internal/card"
	"eventreg/internal/form"
	"eventreg/internal/model"
	"eventreg/internal/repo"
	"eventreg/internal/session"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/wb-go/wbf/config"
)

const usage = `Usage: eventreg-cli [global flags] <command> [flags]

Commands:
  login     --email E --password P
  logout
  whoami
  events
  register  <event-id> --name N --gender G --roll R --contact C [--field key=value ...]

Global flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type app struct {
	out    io.Writer
	log    *zerolog.Logger
	client *apiclient.Client
	store  repo.Store
	sess   *session.Session
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "eventreg", "session.db")
}

func run(ctx context.Context, out io.Writer, args []string) error {
	global := pflag.NewFlagSet("eventreg-cli", pflag.ContinueOnError)
	global.SetOutput(out)
	global.SetInterspersed(false)
	configPath := global.String("config", "", "optional config.yaml with an api section")
	apiURL := global.String("api", os.Getenv("EVENTREG_API"), "registration API base URL")
	storePath := global.String("store", defaultStorePath(), "session database file")
	timeout := global.Duration("timeout", 15*time.Second, "API request timeout")
	verbose := global.BoolP("verbose", "v", false, "log debug output to stderr")
	global.Usage = func() {
		fmt.Fprint(out, usage)
		global.PrintDefaults()
	}
	if err := global.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	if *configPath != "" {
		cfg := config.New()
		if err := cfg.Load(*configPath, "", "EVENTREG"); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		apiCfg, err := buildCFG.BuildAPIConfig(cfg, &logger)
		if err != nil {
			return err
		}
		if !global.Changed("api") {
			*apiURL = apiCfg.BaseURL
		}
		if !global.Changed("timeout") {
			*timeout = apiCfg.Timeout
		}
	}

	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return errors.New("no command given")
	}
	if *apiURL == "" {
		return errors.New("API base URL not set (use --api, --config or EVENTREG_API)")
	}

	store, err := repo.NewSQLiteStore(*storePath, &logger)
	if err != nil {
		return err
	}
	defer store.Close()

	client := apiclient.New(apiclient.Config{BaseURL: *apiURL, Timeout: *timeout}, &logger)
	defer client.Close()

	sess, err := session.Load(ctx, store, client, &logger)
	if err != nil {
		return err
	}

	a := &app{out: out, log: &logger, client: client, store: store, sess: sess}
	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "login":
		return a.login(ctx, cmdArgs)
	case "logout":
		return a.logout(ctx)
	case "whoami":
		return a.whoami()
	case "events":
		return a.events(ctx)
	case "register":
		return a.register(ctx, cmdArgs)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
	fs.SetOutput(a.out)
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("EVENTREG_PASSWORD"), "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errors.New("--email and --password are required")
	}
	user, err := a.sess.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Logged in as %s\n", user.DisplayName())
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if err := a.sess.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *app) whoami() error {
	if !a.sess.IsAuthenticated() {
		fmt.Fprintln(a.out, "Not logged in")
		return nil
	}
	u := a.sess.User()
	fmt.Fprintf(a.out, "Logged in as %s", u.DisplayName())
	if e := u.Email(); e != "" && e != u.DisplayName() {
		fmt.Fprintf(a.out, " <%s>", e)
	}
	fmt.Fprintln(a.out)
	return nil
}

func (a *app) events(ctx context.Context) error {
	events, err := a.client.ListEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to load events: %w", err)
	}
	upcoming, past := card.Split(events, time.Now())
	printCards(a.out, "Upcoming", upcoming)
	printCards(a.out, "Past", past)
	return nil
}

func printCards(out io.Writer, heading string, cards []card.Card) {
	if len(cards) == 0 {
		return
	}
	fmt.Fprintf(out, "%s events:\n", heading)
	for _, c := range cards {
		fmt.Fprintf(out, "  [%s] %s", c.EventID, c.Title)
		if c.DateLabel != "" {
			fmt.Fprintf(out, " | %s", c.DateLabel)
		}
		if c.Time != "" {
			fmt.Fprintf(out, " %s", c.Time)
		}
		switch c.Action {
		case card.ActionExternalLink:
			fmt.Fprintf(out, " | register at %s", c.Link)
		case card.ActionViewResults:
			fmt.Fprintf(out, " | results at %s", c.Link)
		case card.ActionOpenForm:
			fmt.Fprint(out, " | register with: eventreg-cli register "+c.EventID)
		case card.ActionNone:
		}
		fmt.Fprintln(out)
	}
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("register", pflag.ContinueOnError)
	fs.SetOutput(a.out)
	name := fs.String("name", "", "full name")
	gender := fs.String("gender", "", "male, female, other or prefer-not-to-say")
	roll := fs.String("roll", "", "roll number")
	contact := fs.String("contact", "", "10-digit contact number")
	fields := fs.StringArray("field", nil, "extra registration field as key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("register needs exactly one event id")
	}

	event, err := a.client.GetEvent(ctx, fs.Arg(0))
	if err != nil {
		if errors.Is(err, apiclient.ErrNotFound) {
			return errors.New("Event not found")
		}
		return fmt.Errorf("failed to load event: %w", err)
	}
	if err := model.ValidateSchema(event.RegistrationFields); err != nil {
		return fmt.Errorf("failed to load event: %w", err)
	}
	if event.DeadlinePassed(time.Now()) {
		return fmt.Errorf("Registration Closed: the registration deadline for %q has passed", event.Title)
	}

	f := form.New(event, form.NewSubmitter(a.client, a.log))
	f.Fixed = model.FixedFields{Name: *name, Gender: *gender, RollNo: *roll, ContactNo: *contact}

	known := make(map[string]bool, len(event.RegistrationFields))
	for _, field := range event.RegistrationFields {
		known[field.Name] = true
	}
	for _, kv := range *fields {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("--field %q is not key=value", kv)
		}
		if !known[key] {
			return fmt.Errorf("event %q has no field %q", event.Title, key)
		}
		f.SetDynamic(key, value)
	}

	if err := f.Submit(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Registration successful! (%s)\n", event.Title)
	return nil
}
