package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"

	"latctl/internal/config"
	"latctl/internal/matrix"
	"latctl/internal/resolve"
	"latctl/internal/shaper"
)

const usage = `latctl - emulate inter-zone latency with tc (htb + netem)

Usage:
  latctl apply  [--config <yaml>] [--iface <dev>] [--rate <rate>] [--local-zone <zone>] [--verbose] <matrix.csv>
  latctl plan   [--config <yaml>] [--iface <dev>] [--rate <rate>] [--local-zone <zone>] <matrix.csv>
  latctl show   <matrix.csv>
  latctl clear  [--config <yaml>] [--iface <dev>]
  latctl status [--config <yaml>] [--iface <dev>]

The latency matrix is a CSV whose header lists zone names (first cell
ignored) and whose rows give per-zone latencies in milliseconds. The local
zone is taken from --local-zone, the config file, or $LOCAL_DNS.
`

func main() {
	// A .env next to the binary may carry LOCAL_DNS in dev setups.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	switch cmd := os.Args[1]; cmd {
	case "-h", "--help", "help":
		fmt.Print(usage)
	case "apply":
		handleApply(os.Args[2:])
	case "plan":
		handlePlan(os.Args[2:])
	case "show":
		handleShow(os.Args[2:])
	case "clear":
		handleClear(os.Args[2:])
	case "status":
		handleStatus(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func handleApply(args []string) {
	cfg, csvPath := parseRunFlags("apply", args)

	cmds, err := buildPlan(cfg, csvPath)
	if err != nil {
		fatal(err)
	}
	fatal(shaper.NewManager(nil).Apply(cmds))
}

func handlePlan(args []string) {
	cfg, csvPath := parseRunFlags("plan", args)

	cmds, err := buildPlan(cfg, csvPath)
	if err != nil {
		fatal(err)
	}
	for _, c := range cmds {
		fmt.Println(c.String())
	}
}

func handleShow(args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fatal(fmt.Errorf("matrix CSV path is required"))
	}

	m, err := matrix.Load(fs.Arg(0))
	if err != nil {
		fatal(err)
	}
	ips, err := resolve.New(nil).Resolve(m.Zones)
	if err != nil {
		fatal(err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(append(append([]string{"zone"}, m.Zones...), "address"))
	for _, from := range m.Zones {
		row := []string{from}
		for _, to := range m.Zones {
			ms, _ := m.Latency(from, to)
			row = append(row, strconv.Itoa(ms))
		}
		row = append(row, ips[from])
		table.Append(row)
	}
	table.Render()
}

func handleClear(args []string) {
	cfg := parseIfaceFlags("clear", args)
	fatal(shaper.NewManager(nil).Clear(cfg.Interface))
}

func handleStatus(args []string) {
	cfg := parseIfaceFlags("status", args)
	out, err := shaper.NewManager(nil).Status(cfg.Interface)
	if err != nil {
		fatal(err)
	}
	fmt.Println(out)
}

// buildPlan runs the loader, resolver and generator stages; nothing touches
// the host until the returned plan is applied.
func buildPlan(cfg config.Config, csvPath string) ([]shaper.Command, error) {
	m, err := matrix.Load(csvPath)
	if err != nil {
		return nil, err
	}
	ips, err := resolve.New(nil).Resolve(m.Zones)
	if err != nil {
		return nil, err
	}
	return shaper.Plan(m, cfg.LocalZone, ips, shaper.Options{
		Interface: cfg.Interface,
		Rate:      cfg.Rate,
	})
}

func parseRunFlags(name string, args []string) (config.Config, string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	iface := fs.String("iface", "", "network interface to shape")
	rate := fs.String("rate", "", "htb class rate")
	localZone := fs.String("local-zone", "", "zone whose matrix row drives shaping")
	verbose := fs.Bool("verbose", false, "log each tc invocation")
	_ = fs.Parse(args)

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if fs.NArg() != 1 {
		fatal(fmt.Errorf("matrix CSV path is required"))
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	override(&cfg, *iface, *rate, *localZone)
	config.FromEnvironment(&cfg)
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		fatal(err)
	}
	return cfg, fs.Arg(0)
}

func parseIfaceFlags(name string, args []string) config.Config {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	iface := fs.String("iface", "", "network interface")
	verbose := fs.Bool("verbose", false, "log each tc invocation")
	_ = fs.Parse(args)

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal(err)
	}
	override(&cfg, *iface, "", "")
	config.ApplyDefaults(&cfg)
	return cfg
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Config{}, nil
	}
	return config.Load(path)
}

func override(cfg *config.Config, iface, rate, localZone string) {
	if iface != "" {
		cfg.Interface = iface
	}
	if rate != "" {
		cfg.Rate = rate
	}
	if localZone != "" {
		cfg.LocalZone = localZone
	}
}

func fatal(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
