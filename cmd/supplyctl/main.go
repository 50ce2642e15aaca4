package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"github.com/medrex/supply/internal/cache"
	"github.com/medrex/supply/internal/idgen"
	"github.com/medrex/supply/internal/orders"
	"github.com/medrex/supply/internal/reachability"
	"github.com/medrex/supply/internal/remote"
	"github.com/medrex/supply/internal/store"
	"github.com/medrex/supply/pkg/config"
	"github.com/medrex/supply/pkg/logger"
	"github.com/medrex/supply/pkg/types"
)

type Globals struct {
	Config   string `help:"Path to a config file" type:"existingfile"`
	Remote   string `help:"Remote order store URL, overrides the config file"`
	CacheDir string `help:"Directory of the file-backed local cache, overrides the config file"`
	Offline  bool   `help:"Never contact the remote order store"`
	LogLevel string `help:"Log level" default:"warn"`
}

// App carries the wired core into each command
type App struct {
	svc *orders.Service
	cfg *config.Config
	out io.Writer
}

type ContactFlags struct {
	Name    string `help:"Contact name" required:""`
	Phone   string `help:"Contact phone" required:""`
	Address string `help:"Delivery address"`
	City    string `help:"City"`
	Note    string `help:"Free-text note"`
}

func (c ContactFlags) contact() types.Contact {
	return types.Contact{Name: c.Name, Phone: c.Phone, Address: c.Address, City: c.City}
}

type SubmitOrderCmd struct {
	ContactFlags
	Item []string `help:"Line item as SKU:QTY:PRICE[:NAME]; repeatable" required:""`
}

func (c *SubmitOrderCmd) Run(app *App) error {
	items := make([]types.LineItem, 0, len(c.Item))
	for _, raw := range c.Item {
		item, err := parseItem(raw)
		if err != nil {
			return err
		}
		items = append(items, item)
	}

	res, err := app.svc.Submit(context.Background(), types.Draft{
		Kind:    types.KindCommodity,
		Contact: c.contact(),
		Note:    c.Note,
		Items:   items,
	})
	if err != nil {
		return err
	}
	return app.print(res)
}

type SubmitBloodCmd struct {
	ContactFlags
	BloodType   string `help:"Blood group, e.g. O-" required:""`
	Units       string `help:"Units requested" default:"1"`
	Urgency     string `help:"Urgency" default:"Normal" enum:"Normal,High,Critical"`
	Hospital    string `help:"Receiving hospital"`
	PatientName string `help:"Patient name"`
}

func (c *SubmitBloodCmd) Run(app *App) error {
	res, err := app.svc.Submit(context.Background(), types.Draft{
		Kind:    types.KindBiologicalRequest,
		Contact: c.contact(),
		Note:    c.Note,
		BloodRequest: &types.BloodRequest{
			BloodType:   c.BloodType,
			Units:       c.Units,
			Urgency:     c.Urgency,
			Hospital:    c.Hospital,
			PatientName: c.PatientName,
		},
	})
	if err != nil {
		return err
	}
	return app.print(res)
}

type GetCmd struct {
	ID string `arg:"" optional:"" help:"Order or request id; defaults to the last one submitted here"`
}

func (c *GetCmd) Run(app *App) error {
	ctx := context.Background()
	id := c.ID
	if id == "" {
		id = app.svc.LastSubmitted(ctx)
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("no id given and nothing submitted from this installation yet")
	}

	res, err := app.svc.Retrieve(ctx, id)
	if err != nil {
		return err
	}
	return app.print(res)
}

type ListCmd struct{}

func (c *ListCmd) Run(app *App) error {
	listing, err := app.svc.ListAll(context.Background())
	if err != nil {
		return err
	}
	if listing.Notice != "" {
		fmt.Fprintln(os.Stderr, listing.Notice)
	}
	return app.print(listing)
}

type ModeCmd struct{}

func (c *ModeCmd) Run(app *App) error {
	fmt.Fprintln(app.out, app.svc.CurrentMode())
	if banner := app.svc.Banner(); banner != "" {
		fmt.Fprintln(os.Stderr, banner)
	}
	return nil
}

type AdminTokenCmd struct {
	Subject string        `help:"Who the token is for" required:""`
	TTL     time.Duration `help:"Token lifetime" default:"24h"`
}

func (c *AdminTokenCmd) Run(app *App) error {
	if app.cfg.Admin.TokenSecret == "" {
		return fmt.Errorf("admin.token_secret is not configured")
	}
	signed, err := store.NewAdminTokens(app.cfg.Admin.TokenSecret).Issue(c.Subject, c.TTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(app.out, signed)
	return nil
}

var cli struct {
	Globals

	SubmitOrder SubmitOrderCmd `cmd:"" help:"Submit a medicine order"`
	SubmitBlood SubmitBloodCmd `cmd:"" help:"Submit a blood request"`
	Get         GetCmd         `cmd:"" help:"Look up an order or blood request"`
	List        ListCmd        `cmd:"" help:"List orders for administrators"`
	Mode        ModeCmd        `cmd:"" help:"Show whether the remote order store is in use"`
	AdminToken  AdminTokenCmd  `cmd:"" help:"Mint a bearer token for the order store's admin listing"`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("supplyctl"),
		kong.Description("Submit and look up medicine orders and blood requests."),
		kong.UsageOnError(),
	)

	app, closer, err := newApp(&cli.Globals)
	kctx.FatalIfErrorf(err)
	defer closer.Close()

	kctx.FatalIfErrorf(kctx.Run(app))
}

func newApp(g *Globals) (*App, io.Closer, error) {
	var cfg *config.Config
	var err error
	if g.Config != "" {
		cfg, err = config.LoadFile(g.Config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, err
	}
	if g.Remote != "" {
		cfg.Remote.BaseURL = g.Remote
	}
	if g.CacheDir != "" {
		cfg.Cache.Backend = config.CacheBackendFile
		cfg.Cache.Dir = g.CacheDir
	}

	log := logger.NewWithOutput(g.LogLevel, os.Stderr)
	ctx := context.Background()

	medium, closer, err := cache.OpenMedium(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	var (
		rs     orders.RemoteStore
		prober reachability.Prober
	)
	if !g.Offline {
		client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.RequestTimeout()).WithAdminToken(cfg.Remote.AdminToken)
		rs, prober = client, client
	}

	monitor := reachability.NewMonitor(prober,
		reachability.WithProbeTimeout(cfg.Remote.ProbeTimeout()),
		reachability.WithLogger(log),
	)
	monitor.Probe(ctx)

	svc := orders.NewService(rs, cache.New(medium, log), monitor, idgen.New(),
		orders.WithLogger(log),
		orders.WithListLimit(cfg.Cache.ListLimit),
	)
	return &App{svc: svc, cfg: cfg, out: os.Stdout}, closer, nil
}

func (a *App) print(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseItem reads SKU:QTY:PRICE[:NAME]
func parseItem(raw string) (types.LineItem, error) {
	parts := strings.SplitN(raw, ":", 4)
	if len(parts) < 3 || parts[0] == "" {
		return types.LineItem{}, fmt.Errorf("invalid item %q, want SKU:QTY:PRICE[:NAME]", raw)
	}

	qty, err := strconv.Atoi(parts[1])
	if err != nil || qty < 1 {
		return types.LineItem{}, fmt.Errorf("invalid quantity in item %q", raw)
	}
	price, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || price < 0 {
		return types.LineItem{}, fmt.Errorf("invalid price in item %q", raw)
	}

	item := types.LineItem{SKU: parts[0], Qty: qty, Price: price}
	if len(parts) == 4 {
		item.Name = parts[3]
	}
	return item, nil
}
