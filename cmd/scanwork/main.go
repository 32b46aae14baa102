package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/scanwork/scanwork/internal/cache"
	"github.com/scanwork/scanwork/internal/config"
	"github.com/scanwork/scanwork/internal/protocol"
	"github.com/scanwork/scanwork/internal/render"
	"github.com/scanwork/scanwork/internal/services"
	"github.com/scanwork/scanwork/internal/transport"
	"github.com/scanwork/scanwork/internal/version"
)

func main() {
	configPathFlag := flag.String("config", "", "Path to JSON configuration file (default: ~/.config/scanwork/config.json)")
	serverFlag := flag.String("server", "", "Warehouse server address, e.g. 192.168.1.44:8000 (persisted for later runs)")
	versionFlag := flag.Bool("version", false, "Show version information and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s\n\n", version.GetVersionString())
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "  %s                              # Run with the stored server address\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --server 192.168.1.44:8000   # Point at a different server\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --version                    # Show version information\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  SCANWORK_SERVER         Override the server address\n")
		fmt.Fprintf(os.Stderr, "  SCANWORK_STORE          Override the local database path\n")
		fmt.Fprintf(os.Stderr, "  SCANWORK_LOG_FILE       Override the log file path\n")
		fmt.Fprintf(os.Stderr, "  SCANWORK_POLL_INTERVAL  Override the background refresh cadence\n")
	}

	flag.Parse()

	if *versionFlag {
		fmt.Println(version.GetDetailedVersionString())
		return
	}

	configPath := *configPathFlag
	if configPath == "" {
		if env := os.Getenv("SCANWORK_CONFIG"); env != "" {
			configPath = env
		} else {
			configPath = config.DefaultConfigPath()
		}
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Printf("Warning: could not load configuration: %v", err)
		cfg = config.DefaultConfig()
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	if cfg.LogFile != "" {
		if f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600); err == nil {
			logger = log.New(f, "", log.LstdFlags)
			defer func() { _ = f.Close() }()
		} else {
			log.Printf("Warning: could not open log file %s: %v", cfg.LogFile, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storePath := cfg.StorePath
	if storePath == "" {
		storePath = config.DefaultStorePath()
	}
	store, err := cache.Open(ctx, storePath)
	if err != nil {
		log.Fatalf("Could not open local store: %v", err)
	}
	defer func() { _ = store.Close() }()

	serverAddr, err := resolveServerAddress(ctx, store, cfg, *serverFlag)
	if err != nil {
		log.Fatalf("%v. Provide it via --server, SCANWORK_SERVER or the config file.", err)
	}

	client := transport.NewClient(serverAddr)
	if cfg.LogRequests {
		client.SetLogger(logger)
	}

	buses := services.NewBuses()
	state := services.NewStateStore(buses)
	session := services.NewSessionService(client, buses, state)
	session.SetLogger(logger)
	docs := services.NewDocsService(client, session, state, buses)
	docs.SetJournal(store)
	docs.SetLogger(logger)

	poller := services.NewPoller(docs)
	poller.SetLogger(logger)
	go poller.Run(ctx)

	app := &app{
		session: session,
		docs:    docs,
		state:   state,
		buses:   buses,
		poller:  poller,
		out:     os.Stdout,
	}
	fmt.Printf("%s connected to %s\n", version.GetVersionString(), serverAddr)
	app.run(ctx, bufio.NewScanner(os.Stdin))

	session.Logout(context.Background())
}

// resolveServerAddress picks the server base URL: the --server flag wins and
// is persisted, then the config/env value, then the address saved last run.
func resolveServerAddress(ctx context.Context, store *cache.Store, cfg *config.Config, flagAddr string) (string, error) {
	if flagAddr != "" {
		addr, err := config.NormalizeServerAddress(flagAddr)
		if err != nil {
			return "", err
		}
		if err := store.SetServerAddress(ctx, addr); err != nil {
			log.Printf("Warning: could not persist server address: %v", err)
		}
		return addr, nil
	}
	if cfg.ServerAddress != "" {
		return config.NormalizeServerAddress(cfg.ServerAddress)
	}
	saved, err := store.ServerAddress(ctx)
	if err != nil {
		return "", fmt.Errorf("read saved server address: %w", err)
	}
	if saved == "" {
		return "", fmt.Errorf("no server address configured")
	}
	return saved, nil
}

// app is the line-oriented terminal front end over the protocol services.
type app struct {
	session services.SessionService
	docs    services.DocsService
	state   *services.StateStore
	buses   *services.Buses
	poller  *services.Poller
	out     *os.File
}

func (a *app) run(ctx context.Context, in *bufio.Scanner) {
	fmt.Fprintln(a.out, `Commands: users, login <id> <password>, badge <code>, docs, doc <id>, pos <id>, scan <code>, open <code>, button <id>, pick <id>, del <id|*>, back, quit`)
	for {
		a.drain()
		fmt.Fprint(a.out, "> ")
		if !in.Scan() {
			return
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]
		if cmd == "quit" || cmd == "exit" {
			return
		}
		a.execute(ctx, cmd, args)
		a.drain()
	}
}

func (a *app) execute(ctx context.Context, cmd string, args []string) {
	var err error
	switch cmd {
	case "users":
		var users []protocol.User
		users, err = a.session.FetchUsers(ctx)
		for _, u := range users {
			fmt.Fprintf(a.out, "%s\t%s\n", u.ID, u.Name)
		}
	case "login":
		if len(args) < 1 {
			fmt.Fprintln(a.out, "usage: login <id> [password]")
			return
		}
		password := ""
		if len(args) > 1 {
			password = args[1]
		}
		var res services.LoginResult
		res, err = a.session.Login(ctx, args[0], password)
		a.reportLogin(res, err)
		return
	case "badge":
		if len(args) != 1 {
			fmt.Fprintln(a.out, "usage: badge <code>")
			return
		}
		var res services.LoginResult
		res, err = a.session.ScanLogin(ctx, args[0])
		a.reportLogin(res, err)
		return
	case "docs":
		_, err = a.docs.FetchDocumentList(ctx, true, true)
		if err == nil {
			a.poller.SetVisible(protocol.FormDocList, "")
			if list, ok := a.state.TaskList(); ok {
				render.TaskList(a.out, list)
			}
		}
	case "doc":
		if len(args) != 1 {
			fmt.Fprintln(a.out, "usage: doc <id>")
			return
		}
		_, err = a.docs.FetchDocument(ctx, args[0], true, true)
	case "pos":
		if len(args) != 1 {
			fmt.Fprintln(a.out, "usage: pos <id>")
			return
		}
		_, err = a.docs.FetchPosition(ctx, args[0], true, true)
	case "open":
		if len(args) != 1 {
			fmt.Fprintln(a.out, "usage: open <code>")
			return
		}
		_, err = a.docs.OpenDocumentFromScan(ctx, args[0])
	case "scan":
		if len(args) != 1 {
			fmt.Fprintln(a.out, "usage: scan <code>")
			return
		}
		err = a.scanVisible(ctx, args[0])
	case "button":
		if len(args) != 1 {
			fmt.Fprintln(a.out, "usage: button <id>")
			return
		}
		form, formID := a.visibleTarget()
		_, err = a.docs.PressButton(ctx, form, formID, args[0], "")
	case "pick":
		if len(args) != 1 {
			fmt.Fprintln(a.out, "usage: pick <id>")
			return
		}
		form, formID := a.visibleTarget()
		_, err = a.docs.SelectItem(ctx, form, formID, args[0])
	case "del":
		if len(args) != 1 {
			fmt.Fprintln(a.out, "usage: del <id|*>")
			return
		}
		_, formID := a.visibleTarget()
		_, err = a.docs.DeletePositionItem(ctx, formID, args[0])
	case "back":
		a.poller.ClearVisible()
		fmt.Fprintln(a.out, "left form")
	default:
		fmt.Fprintf(a.out, "unknown command %q\n", cmd)
		return
	}
	if err != nil {
		fmt.Fprintln(a.out, render.UserMessage(err))
	}
}

func (a *app) reportLogin(res services.LoginResult, err error) {
	if err != nil {
		fmt.Fprintln(a.out, render.UserMessage(err))
		return
	}
	switch res.Outcome {
	case services.LoginSuccess:
		fmt.Fprintln(a.out, "авторизация выполнена")
	case services.LoginFailed:
		fmt.Fprintln(a.out, res.Message)
	}
	a.drain()
}

// scanVisible routes a scanned code to the operation matching the visible
// form.
func (a *app) scanVisible(ctx context.Context, code string) error {
	form, formID := a.visibleTarget()
	switch form {
	case protocol.FormDoc:
		_, err := a.docs.ScanAgainstDocument(ctx, formID, code)
		return err
	case protocol.FormPos:
		_, err := a.docs.ScanAgainstPosition(ctx, formID, code)
		return err
	default:
		_, err := a.docs.ScanAgainstList(ctx, code)
		return err
	}
}

func (a *app) visibleTarget() (protocol.Form, string) {
	if pos, ok := a.state.Position(); ok {
		return protocol.FormPos, pos.FormID
	}
	if doc, ok := a.state.Document(); ok {
		return protocol.FormDoc, doc.FormID
	}
	return protocol.FormDocList, ""
}

// drain flushes the side-channel buses onto the terminal.
func (a *app) drain() {
	if msg, ok := a.buses.Error.TryReceive(); ok {
		fmt.Fprintf(a.out, "! %s\n", msg)
	}
	if d, ok := a.buses.Dialog.TryReceive(); ok {
		render.Dialog(a.out, d)
	}
	if sel, ok := a.buses.Select.TryReceive(); ok {
		render.Select(a.out, sel)
	}
	if pr, ok := a.buses.Print.TryReceive(); ok {
		fmt.Fprintf(a.out, "print job: %s %.0fx%.0fmm x%d (%d bytes base64)\n",
			pr.ImageFormat, pr.PaperWidthMm, pr.PaperHeightMm, pr.Copies, len(pr.ImageBase64))
	}
	if ev, ok := a.buses.AppEvent.TryReceive(); ok && ev == services.AppEventRequireLogin {
		a.poller.ClearVisible()
		fmt.Fprintln(a.out, "сессия завершена, войдите снова")
	}
	for {
		nav, ok := a.buses.Navigation.TryReceive()
		if !ok {
			break
		}
		a.showForm(nav)
	}
}

func (a *app) showForm(nav services.NavigationTarget) {
	a.poller.SetVisible(nav.Form, nav.FormID)
	switch nav.Form {
	case protocol.FormDoc:
		if doc, ok := a.state.Document(); ok {
			render.Document(a.out, doc)
		}
	case protocol.FormPos:
		if pos, ok := a.state.Position(); ok {
			render.Position(a.out, pos)
		}
	case protocol.FormDocList:
		if list, ok := a.state.TaskList(); ok {
			render.TaskList(a.out, list)
		}
	}
}
