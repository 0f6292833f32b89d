package shaper

import (
	"fmt"
	"strings"

	"latctl/internal/matrix"
)

const (
	DefaultInterface = "eth0"
	DefaultRate      = "1gbit"

	// Per-destination classes start here; 1:1 and 1:10 are taken by the
	// bandwidth parent and the best-effort default leaf.
	firstHandle = 11
)

// Command is one tc invocation as an argv list. No shell is involved, so
// zone names and addresses are never re-parsed by an interpreter.
type Command struct {
	Name string
	Args []string

	// TolerateError marks commands whose failure does not abort the run.
	// Only the initial root-qdisc teardown sets it: deleting a qdisc that
	// does not exist is the normal first-boot case.
	TolerateError bool
}

func (c Command) String() string {
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Options selects the interface and htb rate used by a plan.
type Options struct {
	Interface string
	Rate      string
}

func (o *Options) applyDefaults() {
	if o.Interface == "" {
		o.Interface = DefaultInterface
	}
	if o.Rate == "" {
		o.Rate = DefaultRate
	}
}

// Jitter returns the netem delay variation in milliseconds for a base
// latency: latency/20, with a floor of 1ms.
func Jitter(latencyMS int) int {
	if j := latencyMS / 20; j > 0 {
		return j
	}
	return 1
}

// Plan builds the ordered tc command list shaping egress from localZone
// toward every other zone in the matrix. It is pure: nothing is executed.
//
// Ordering matters to tc: a class must exist before a qdisc attaches to it,
// and the qdisc before a filter targets its handle, so each destination
// contributes a class/qdisc/filter triplet in that order.
func Plan(m *matrix.Matrix, localZone string, ips map[string]string, opts Options) ([]Command, error) {
	opts.applyDefaults()
	if localZone == "" {
		return nil, fmt.Errorf("local zone is required")
	}
	if !m.HasRow(localZone) {
		return nil, fmt.Errorf("local zone %q has no row in the matrix", localZone)
	}

	dev := opts.Interface
	cmds := []Command{
		{Name: "tc", Args: []string{"qdisc", "del", "dev", dev, "root"}, TolerateError: true},
		{Name: "tc", Args: []string{"qdisc", "add", "dev", dev, "root", "handle", "1:", "htb", "default", "10"}},
		{Name: "tc", Args: []string{"class", "add", "dev", dev, "parent", "1:", "classid", "1:1", "htb", "rate", opts.Rate}},
		{Name: "tc", Args: []string{"class", "add", "dev", dev, "parent", "1:1", "classid", "1:10", "htb", "rate", opts.Rate}},
		{Name: "tc", Args: []string{"qdisc", "add", "dev", dev, "parent", "1:10", "handle", "10:", "sfq", "perturb", "10"}},
	}

	handle := firstHandle
	for _, zone := range m.Zones {
		if zone == localZone {
			continue
		}
		latency, ok := m.Latency(localZone, zone)
		if !ok || latency <= 0 {
			continue
		}
		ip, ok := ips[zone]
		if !ok {
			return nil, fmt.Errorf("no resolved address for zone %q", zone)
		}

		classid := fmt.Sprintf("1:%d", handle)
		delay := fmt.Sprintf("%dms", latency)
		jitter := fmt.Sprintf("%dms", Jitter(latency))
		cmds = append(cmds,
			Command{Name: "tc", Args: []string{"class", "add", "dev", dev, "parent", "1:1", "classid", classid, "htb", "rate", opts.Rate}},
			Command{Name: "tc", Args: []string{"qdisc", "add", "dev", dev, "parent", classid, "handle", fmt.Sprintf("%d:", handle), "netem", "delay", delay, jitter, "distribution", "normal"}},
			Command{Name: "tc", Args: []string{"filter", "add", "dev", dev, "protocol", "ip", "parent", "1:", "prio", "1", "u32", "match", "ip", "dst", ip + "/32", "flowid", classid}},
		)
		handle++
	}

	return cmds, nil
}
