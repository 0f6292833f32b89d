package shaper

import (
	"fmt"
	"strings"
	"testing"

	"latctl/internal/matrix"
)

func mustMatrix(t *testing.T, csv string) *matrix.Matrix {
	t.Helper()
	m, err := matrix.Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return m
}

func TestJitter(t *testing.T) {
	t.Parallel()

	cases := []struct{ latency, want int }{
		{100, 5},
		{15, 1},
		{19, 1},
		{20, 1},
		{40, 2},
		{220, 11},
		{1, 1},
	}
	for _, c := range cases {
		if got := Jitter(c.latency); got != c.want {
			t.Fatalf("Jitter(%d)=%d want %d", c.latency, got, c.want)
		}
	}
}

func TestPlan_SingleShapedZone(t *testing.T) {
	t.Parallel()

	m := mustMatrix(t, "zone,A,B,C\nA,0,40,0\nB,40,0,10\nC,0,10,0\n")
	ips := map[string]string{"A": "10.0.0.1", "B": "10.0.0.2", "C": "10.0.0.3"}

	cmds, err := Plan(m, "A", ips, Options{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	// 5 setup commands plus one class/qdisc/filter triplet for B.
	if len(cmds) != 8 {
		t.Fatalf("len=%d cmds=%v", len(cmds), cmds)
	}

	want := []string{
		"tc qdisc del dev eth0 root",
		"tc qdisc add dev eth0 root handle 1: htb default 10",
		"tc class add dev eth0 parent 1: classid 1:1 htb rate 1gbit",
		"tc class add dev eth0 parent 1:1 classid 1:10 htb rate 1gbit",
		"tc qdisc add dev eth0 parent 1:10 handle 10: sfq perturb 10",
		"tc class add dev eth0 parent 1:1 classid 1:11 htb rate 1gbit",
		"tc qdisc add dev eth0 parent 1:11 handle 11: netem delay 40ms 2ms distribution normal",
		"tc filter add dev eth0 protocol ip parent 1: prio 1 u32 match ip dst 10.0.0.2/32 flowid 1:11",
	}
	for i, w := range want {
		if cmds[i].String() != w {
			t.Fatalf("cmds[%d]=%q want %q", i, cmds[i].String(), w)
		}
	}

	if !cmds[0].TolerateError {
		t.Fatalf("teardown must tolerate errors")
	}
	for _, c := range cmds[1:] {
		if c.TolerateError {
			t.Fatalf("only teardown may tolerate errors: %q", c.String())
		}
	}
}

func TestPlan_SkipsNonPositiveWithoutConsumingHandles(t *testing.T) {
	t.Parallel()

	m := mustMatrix(t, "zone,A,B,C,D,E\nA,0,30,0,-5,60\nB,0,0,0,0,0\nC,0,0,0,0,0\nD,0,0,0,0,0\nE,0,0,0,0,0\n")
	ips := map[string]string{
		"A": "10.0.0.1", "B": "10.0.0.2", "C": "10.0.0.3",
		"D": "10.0.0.4", "E": "10.0.0.5",
	}

	cmds, err := Plan(m, "A", ips, Options{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	// B (30ms) takes handle 11; C and D are skipped; E (60ms) takes 12.
	joined := make([]string, len(cmds))
	for i, c := range cmds {
		joined[i] = c.String()
	}
	all := strings.Join(joined, "\n")

	if !strings.Contains(all, "classid 1:11 htb") || !strings.Contains(all, "dst 10.0.0.2/32 flowid 1:11") {
		t.Fatalf("B not on handle 11:\n%s", all)
	}
	if !strings.Contains(all, "classid 1:12 htb") || !strings.Contains(all, "dst 10.0.0.5/32 flowid 1:12") {
		t.Fatalf("E not on handle 12:\n%s", all)
	}
	if strings.Contains(all, "10.0.0.3") || strings.Contains(all, "10.0.0.4") {
		t.Fatalf("zero/negative-latency zones must not appear:\n%s", all)
	}
	if strings.Contains(all, "1:13") {
		t.Fatalf("skipped zones must not consume handles:\n%s", all)
	}
}

func TestPlan_OrderingPerHandle(t *testing.T) {
	t.Parallel()

	m := mustMatrix(t, "zone,A,B,C\nA,0,40,80\nB,0,0,0\nC,0,0,0\n")
	ips := map[string]string{"A": "10.0.0.1", "B": "10.0.0.2", "C": "10.0.0.3"}

	cmds, err := Plan(m, "A", ips, Options{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	for handle := 11; handle <= 12; handle++ {
		classid := fmt.Sprintf("classid 1:%d", handle)
		netemParent := fmt.Sprintf("parent 1:%d handle %d:", handle, handle)
		flowid := fmt.Sprintf("flowid 1:%d", handle)
		classIdx, qdiscIdx, filterIdx := -1, -1, -1
		for i, c := range cmds {
			s := c.String()
			switch {
			case strings.HasPrefix(s, "tc class add") && strings.Contains(s, classid):
				classIdx = i
			case strings.HasPrefix(s, "tc qdisc add") && strings.Contains(s, netemParent):
				qdiscIdx = i
			case strings.HasPrefix(s, "tc filter add") && strings.Contains(s, flowid):
				filterIdx = i
			}
		}
		if classIdx < 0 || qdiscIdx < 0 || filterIdx < 0 {
			t.Fatalf("handle %d incomplete: class=%d qdisc=%d filter=%d", handle, classIdx, qdiscIdx, filterIdx)
		}
		if !(classIdx < qdiscIdx && qdiscIdx < filterIdx) {
			t.Fatalf("handle %d out of order: class=%d qdisc=%d filter=%d", handle, classIdx, qdiscIdx, filterIdx)
		}
	}
}

func TestPlan_CustomInterfaceAndRate(t *testing.T) {
	t.Parallel()

	m := mustMatrix(t, "zone,A,B\nA,0,10\nB,10,0\n")
	ips := map[string]string{"A": "10.0.0.1", "B": "10.0.0.2"}

	cmds, err := Plan(m, "A", ips, Options{Interface: "ens3", Rate: "10gbit"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	for _, c := range cmds {
		s := c.String()
		if strings.Contains(s, "eth0") || strings.Contains(s, "1gbit") {
			t.Fatalf("defaults leaked into %q", s)
		}
	}
	if cmds[0].String() != "tc qdisc del dev ens3 root" {
		t.Fatalf("teardown=%q", cmds[0].String())
	}
}

func TestPlan_LocalZoneNotInMatrix(t *testing.T) {
	t.Parallel()

	m := mustMatrix(t, "zone,A,B\nA,0,10\nB,10,0\n")
	if _, err := Plan(m, "Z", nil, Options{}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := Plan(m, "", nil, Options{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestPlan_MissingResolvedIP(t *testing.T) {
	t.Parallel()

	m := mustMatrix(t, "zone,A,B\nA,0,10\nB,10,0\n")
	if _, err := Plan(m, "A", map[string]string{"A": "10.0.0.1"}, Options{}); err == nil {
		t.Fatalf("expected error")
	}
}
