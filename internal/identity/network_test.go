package identity

import (
	"context"
	"testing"
)

const sampleIPLinkOutput = `1: lo: <LOOPBACK,UP,LOWER_UP> mtu 65536 qdisc noqueue state UNKNOWN mode DEFAULT group default qlen 1000
    link/loopback 00:00:00:00:00:00 brd 00:00:00:00:00:00
2: eth0: <BROADCAST,MULTICAST,UP,LOWER_UP> mtu 1500 qdisc fq_codel state UP mode DEFAULT group default qlen 1000
    link/ether 52:54:00:12:34:56 brd ff:ff:ff:ff:ff:ff
3: wlan0: <BROADCAST,MULTICAST> mtu 1500 qdisc noop state DOWN mode DEFAULT group default qlen 1000
    link/ether aa:bb:cc:dd:ee:ff brd ff:ff:ff:ff:ff:ff
4: docker0: <NO-CARRIER,BROADCAST,MULTICAST,UP> mtu 1500 qdisc noqueue state DOWN mode DEFAULT group default
    link/ether 02:42:ac:11:00:01 brd ff:ff:ff:ff:ff:ff
5: veth123@if6: <BROADCAST,MULTICAST,UP,LOWER_UP> mtu 1500 qdisc noqueue master docker0 state UP mode DEFAULT
    link/ether 7e:3a:2b:1c:0d:0e brd ff:ff:ff:ff:ff:ff link-netnsid 0`

func TestParseAdaptersExcludesVirtual(t *testing.T) {
	adapters := ParseAdapters(sampleIPLinkOutput)
	names := map[string]bool{}
	for _, a := range adapters {
		names[a.Name] = true
	}
	if !names["eth0"] || !names["wlan0"] {
		t.Fatalf("expected eth0 and wlan0, got %v", names)
	}
	if names["lo"] || names["docker0"] || names["veth123"] {
		t.Fatalf("did not expect loopback/virtual adapters, got %v", names)
	}
}

func TestParseAdaptersExtractsMACAndState(t *testing.T) {
	adapters := ParseAdapters(sampleIPLinkOutput)
	var eth0 *Adapter
	for i := range adapters {
		if adapters[i].Name == "eth0" {
			eth0 = &adapters[i]
		}
	}
	if eth0 == nil {
		t.Fatal("eth0 not found")
	}
	if eth0.MAC != "52:54:00:12:34:56" {
		t.Fatalf("unexpected mac: %s", eth0.MAC)
	}
	if eth0.State != "UP" {
		t.Fatalf("expected UP, got %s", eth0.State)
	}
}

func TestIsValidAdapterName(t *testing.T) {
	valid := []string{"eth0", "wlan0", "ens3", "enp0s3"}
	for _, n := range valid {
		if !isValidAdapterName(n) {
			t.Errorf("expected %q to be valid", n)
		}
	}
	invalid := []string{"", "a b", "eth0; rm -rf /", "abcdefghijklmnop"}
	for _, n := range invalid {
		if isValidAdapterName(n) {
			t.Errorf("expected %q to be invalid", n)
		}
	}
}

func TestComposeRotationHasSevenCommandsInOrder(t *testing.T) {
	cmds := ComposeRotation("eth0", "AA:BB:CC:DD:EE:FF", "10.0.0.50", 24, "10.0.0.1", "8.8.8.8")
	if len(cmds) != 7 {
		t.Fatalf("expected 7 commands, got %d", len(cmds))
	}
	want := [][]string{
		{"ip", "link", "set", "dev", "eth0", "down"},
		{"ip", "link", "set", "dev", "eth0", "address", "AA:BB:CC:DD:EE:FF"},
		{"ip", "link", "set", "dev", "eth0", "up"},
		{"ip", "addr", "flush", "dev", "eth0"},
		{"ip", "addr", "add", "10.0.0.50/24", "dev", "eth0"},
		{"ip", "route", "add", "default", "via", "10.0.0.1", "dev", "eth0"},
	}
	for i, w := range want {
		if !equalArgv(cmds[i].Argv, w) {
			t.Fatalf("command %d: got %v, want %v", i, cmds[i].Argv, w)
		}
	}
	if cmds[6].Shell != "echo 'nameserver 8.8.8.8' > /etc/resolv.conf" {
		t.Fatalf("unexpected 7th command: %v", cmds[6])
	}
}

func equalArgv(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// fakeRunner is a CommandRunner test double that scripts canned responses
// keyed by the joined command string.
type fakeRunner struct {
	responses map[string]fakeResponse
	calls     []Command
}

type fakeResponse struct {
	stdout, stderr string
	ok             bool
}

func (f *fakeRunner) Run(_ context.Context, c Command) (string, string, bool, error) {
	f.calls = append(f.calls, c)
	r, found := f.responses[c.String()]
	if !found {
		return "", "", true, nil
	}
	return r.stdout, r.stderr, r.ok, nil
}

func TestExecuteRotationRetriesRouteOnlink(t *testing.T) {
	routeCmd := Command{Argv: []string{"ip", "route", "add", "default", "via", "10.0.0.1", "dev", "eth0"}}
	runner := &fakeRunner{responses: map[string]fakeResponse{
		routeCmd.String(): {stderr: "Error: Nexthop has invalid gateway.", ok: false},
	}}
	c := &Controller{Runner: runner}
	if err := c.ExecuteRotation(context.Background(), "eth0", "AA:BB:CC:DD:EE:FF", "10.0.0.50", 24, "10.0.0.1", "8.8.8.8", 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, call := range runner.calls {
		if isRouteCommand(call) && len(call.Argv) > 0 && call.Argv[len(call.Argv)-1] == "onlink" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a retried route command with onlink appended")
	}
}

func TestExecuteRotationTreatsBenignErrorsAsSuccess(t *testing.T) {
	flushCmd := Command{Argv: []string{"ip", "addr", "flush", "dev", "eth0"}}
	runner := &fakeRunner{responses: map[string]fakeResponse{
		flushCmd.String(): {stderr: "RTNETLINK answers: No such process", ok: false},
	}}
	c := &Controller{Runner: runner}
	if err := c.ExecuteRotation(context.Background(), "eth0", "AA:BB:CC:DD:EE:FF", "10.0.0.50", 24, "10.0.0.1", "8.8.8.8", 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExecuteRotationDoesNotRetryUnrelatedRouteFailure(t *testing.T) {
	routeCmd := Command{Argv: []string{"ip", "route", "add", "default", "via", "10.0.0.1", "dev", "eth0"}}
	runner := &fakeRunner{responses: map[string]fakeResponse{
		routeCmd.String(): {stderr: "RTNETLINK answers: Operation not permitted", ok: false},
	}}
	c := &Controller{Runner: runner}
	err := c.ExecuteRotation(context.Background(), "eth0", "AA:BB:CC:DD:EE:FF", "10.0.0.50", 24, "10.0.0.1", "8.8.8.8", 3)
	if err == nil {
		t.Fatal("expected an unrelated route failure to be surfaced, not retried")
	}
	for _, call := range runner.calls {
		if isRouteCommand(call) && len(call.Argv) > 0 && call.Argv[len(call.Argv)-1] == "onlink" {
			t.Fatal("did not expect an onlink retry for a non-gateway route failure")
		}
	}
}

func TestExecuteRotationFailsAfterExceedingBenignErrorTolerance(t *testing.T) {
	downCmd := Command{Argv: []string{"ip", "link", "set", "dev", "eth0", "down"}}
	setCmd := Command{Argv: []string{"ip", "link", "set", "dev", "eth0", "address", "AA:BB:CC:DD:EE:FF"}}
	upCmd := Command{Argv: []string{"ip", "link", "set", "dev", "eth0", "up"}}
	flushCmd := Command{Argv: []string{"ip", "addr", "flush", "dev", "eth0"}}
	benign := fakeResponse{stderr: "File exists", ok: false}
	runner := &fakeRunner{responses: map[string]fakeResponse{
		downCmd.String():  benign,
		setCmd.String():   benign,
		upCmd.String():    benign,
		flushCmd.String(): benign,
	}}
	c := &Controller{Runner: runner}
	err := c.ExecuteRotation(context.Background(), "eth0", "AA:BB:CC:DD:EE:FF", "10.0.0.50", 24, "10.0.0.1", "8.8.8.8", 2)
	if err == nil {
		t.Fatal("expected rotation to fail once benign errors exceed tolerance")
	}
}
