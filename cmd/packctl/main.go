package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/talkincode/packflow/internal/client"
	"github.com/talkincode/packflow/internal/domain"
	"github.com/talkincode/packflow/internal/workflow"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	server  = flag.String("server", envOr("PACKFLOW_SERVER", "http://127.0.0.1:1816"), "packflow server url")
	session = flag.String("session", envOr("PACKFLOW_SESSION", defaultSessionPath()), "session file")
)

const usage = `usage: packctl [-server url] [-session file] <command> [args]

commands:
  login -u user -p password
  logout
  orders [-q text] [-stock all|in-stock|out-of-stock] [-page n]
  action <orderId>
  submit [-forms file.json] [-y] [-atomic] <orderId>
  dashboard <production|packaging|dispatch> [-status value] [-q text] [-page n]
  status <production|packaging|dispatch> <orderId> <value>
`

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "packctl.session"
	}
	return filepath.Join(home, ".packctl.session")
}

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	store, err := client.OpenBoltStore(*session)
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	cli := client.New(*server, store, client.WithUnauthorizedHook(func(loginPath string) {
		fmt.Fprintf(os.Stderr, "session expired, run: packctl login (%s)\n", loginPath)
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "login":
		err = cmdLogin(ctx, cli, args)
	case "logout":
		err = cli.Logout()
	case "orders":
		err = cmdOrders(ctx, cli, args)
	case "action":
		err = cmdAction(ctx, cli, args)
	case "submit":
		err = cmdSubmit(ctx, cli, store, args)
	case "dashboard":
		err = cmdDashboard(ctx, cli, args)
	case "status":
		err = cmdStatus(ctx, cli, args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func parseOrderID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, errors.Errorf("invalid order id %q", s)
	}
	return id, nil
}

func cmdLogin(ctx context.Context, cli *client.Client, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	user := fs.String("u", "", "username")
	pass := fs.String("p", "", "password")
	_ = fs.Parse(args)
	if *user == "" || *pass == "" {
		return errors.New("login requires -u and -p")
	}
	res, err := cli.Login(ctx, *user, *pass)
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s (%s), token expires %s\n", res.Username, res.Role, res.Expires.Local().Format("2006-01-02 15:04"))
	return nil
}

func cmdOrders(ctx context.Context, cli *client.Client, args []string) error {
	fs := flag.NewFlagSet("orders", flag.ExitOnError)
	q := fs.String("q", "", "search customer, PO number or order id")
	stock := fs.String("stock", "", "stock filter: all, in-stock, out-of-stock")
	page := fs.Int("page", 0, "page number")
	_ = fs.Parse(args)

	res, err := cli.ListOrders(ctx, client.ListOptions{Query: *q, StockFilter: *stock, Page: *page})
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	disabled := cli.Store().DisabledOrders()
	for _, g := range res.Items {
		fmt.Fprintf(tw, "%s\t%s\t\t\t\t\t\n", g.PONumber, g.CustomerName)
		for _, o := range g.Orders {
			label := o.Action.Label
			if o.Action.Disabled || disabled[o.ID] {
				label += " (disabled)"
			}
			fmt.Fprintf(tw, "  %d\t%s\t%s\tqty %d\tstock %d\t%s\t%s\n",
				o.ID, o.ShortID, o.ProductName, o.Quantity, o.Stock, o.Stage, label)
		}
	}
	_ = tw.Flush()
	fmt.Printf("page %d, %d purchase orders, filter %s\n", res.Page, res.Total, cli.Store().StockFilter())
	return nil
}

func cmdAction(ctx context.Context, cli *client.Client, args []string) error {
	if len(args) != 1 {
		return errors.New("action requires an order id")
	}
	id, err := parseOrderID(args[0])
	if err != nil {
		return err
	}
	act, err := cli.GetOrderAction(ctx, id)
	if err != nil {
		return err
	}
	out, _ := json.MarshalIndent(act, "", "  ")
	fmt.Println(string(out))
	return nil
}

// loadForms overlays operator input from a JSON file onto the pre-filled forms
func loadForms(path string, forms workflow.Payload) (workflow.Payload, error) {
	base := map[string]interface{}{}
	raw, err := json.Marshal(forms)
	if err != nil {
		return forms, err
	}
	if err := json.Unmarshal(raw, &base); err != nil {
		return forms, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return forms, errors.Wrap(err, "read forms")
		}
		input := map[string]interface{}{}
		if err := json.Unmarshal(data, &input); err != nil {
			return forms, errors.Wrap(err, "parse forms")
		}
		for name, v := range input {
			fields, ok := v.(map[string]interface{})
			cur, exists := base[name].(map[string]interface{})
			if !ok || !exists {
				base[name] = v
				continue
			}
			for k, fv := range fields {
				cur[k] = fv
			}
		}
	}
	return workflow.DecodePayload(base)
}

func confirmer(assumeYes bool) workflow.Confirmer {
	return workflow.ConfirmFunc(func(ctx context.Context, prompt string) (bool, error) {
		if assumeYes {
			return true, nil
		}
		fmt.Printf("%s [y/N] ", prompt)
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return false, nil
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	})
}

func cmdSubmit(ctx context.Context, cli *client.Client, store client.SessionStore, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	formsFile := fs.String("forms", "", "JSON file with slip form values")
	yes := fs.Bool("y", false, "do not ask for confirmation")
	atomic := fs.Bool("atomic", false, "run the whole branch server side in one transaction")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("submit requires an order id")
	}
	id, err := parseOrderID(fs.Arg(0))
	if err != nil {
		return err
	}
	if store.IsDisabled(id) {
		return workflow.ErrAlreadySubmitted
	}
	row, err := cli.GetOrder(ctx, id)
	if err != nil {
		return err
	}

	collect := func(ctx context.Context, layout workflow.Layout, forms workflow.Payload) (workflow.Payload, error) {
		fmt.Printf("%s slip for %s\n", layout.Title(), row.ShortID)
		return loadForms(*formsFile, forms)
	}

	if *atomic {
		act := workflow.Decide(row.Order, row.Stock)
		if act.Disabled {
			return workflow.ErrActionDisabled
		}
		ok, err := confirmer(*yes).Confirm(ctx, act.Prompt(row.Order))
		if err != nil {
			return err
		}
		if !ok {
			return workflow.ErrDeclined
		}
		layout, err := workflow.LayoutFor(row.Order, act.SlipType, row.Stock)
		if err != nil {
			return err
		}
		payload, err := collect(ctx, layout, workflow.NewForms(row.Order, layout))
		if err != nil {
			return err
		}
		res, err := cli.AdvanceWorkflow(ctx, "", workflow.Submission{Type: act.SlipType, Order: row.Order, Payload: payload})
		if err != nil {
			return err
		}
		if err := store.Disable(id); err != nil {
			return err
		}
		printSteps(res.Result)
		fmt.Printf("order %s is now in stage %s\n", res.Order.ShortID, res.Order.Stage)
		return nil
	}

	actions := workflow.NewActions(workflow.NewOrchestrator(cli, store), confirmer(*yes))
	res, err := actions.Trigger(ctx, row.Order, row.Stock, collect)
	if err != nil {
		var verr *workflow.ValidationError
		if errors.As(err, &verr) {
			for field, msg := range verr.Fields {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", field, msg)
			}
		}
		return err
	}
	printSteps(res)
	return nil
}

func printSteps(res *workflow.Result) {
	fmt.Printf("layout %s, %d steps\n", res.Layout, len(res.Steps))
	for _, s := range res.Steps {
		if s.SlipID != 0 {
			fmt.Printf("  %s -> slip %d\n", s.Step, s.SlipID)
		} else {
			fmt.Printf("  %s\n", s.Step)
		}
	}
}

func cmdDashboard(ctx context.Context, cli *client.Client, args []string) error {
	if len(args) == 0 {
		return errors.New("dashboard requires production, packaging or dispatch")
	}
	fs := flag.NewFlagSet("dashboard", flag.ExitOnError)
	status := fs.String("status", "", "status filter")
	q := fs.String("q", "", "search text")
	page := fs.Int("page", 1, "page number")
	_ = fs.Parse(args[1:])

	dq := client.DashboardQuery{Query: *q, Status: *status, Page: *page}
	var (
		res *client.Page[client.OrderRow]
		err error
	)
	switch args[0] {
	case "production":
		res, err = cli.ProductionDashboard(ctx, dq)
	case "packaging":
		res, err = cli.PackagingDashboard(ctx, dq)
	case "dispatch":
		res, err = cli.DispatchDashboard(ctx, dq)
	default:
		return errors.Errorf("unknown dashboard %q", args[0])
	}
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tORDER\tPRODUCT\tQTY\tSTATUS\tPACKAGING\tDISPATCH")
	for _, o := range res.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%s\n",
			o.ID, o.ShortID, o.ProductName, o.Quantity, o.Status, o.PackagingStatus, o.DispatchStatus)
	}
	_ = tw.Flush()
	fmt.Printf("page %d of %d orders\n", res.Page, res.Total)
	return nil
}

func cmdStatus(ctx context.Context, cli *client.Client, args []string) error {
	if len(args) != 3 {
		return errors.New("status requires <production|packaging|dispatch> <orderId> <value>")
	}
	id, err := parseOrderID(args[1])
	if err != nil {
		return err
	}
	var order *domain.Order
	switch args[0] {
	case "production":
		order, err = cli.UpdateStatus(ctx, id, args[2])
	case "packaging":
		order, err = cli.UpdatePackagingStatus(ctx, id, args[2])
	case "dispatch":
		order, err = cli.UpdateDispatchStatus(ctx, id, args[2])
	default:
		return errors.Errorf("unknown status kind %q", args[0])
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s: status %s, packaging %s, dispatch %s\n",
		order.ShortID, order.Status, order.PackagingStatus, order.DispatchStatus)
	return nil
}
