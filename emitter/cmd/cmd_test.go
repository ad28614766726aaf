package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/khushi89012/syook/common/codec"
	"github.com/khushi89012/syook/common/framing"
)

const testPassphrase = "cmd-test-passphrase"

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// Test command initialization and registration
func TestCommandsRegistered(t *testing.T) {
	if rootCmd == nil {
		t.Fatal("rootCmd should not be nil")
	}

	expectedCommands := map[string]bool{
		"run":     false,
		"send":    false,
		"tag":     false,
		"encrypt": false,
		"decrypt": false,
		"watch":   false,
	}

	for _, cmd := range rootCmd.Commands() {
		name := strings.Fields(cmd.Use)[0]
		if _, ok := expectedCommands[name]; ok {
			expectedCommands[name] = true
		}
	}

	for cmdName, found := range expectedCommands {
		if !found {
			t.Errorf("expected command '%s' to be registered with root command", cmdName)
		}
	}
}

func TestSendFlagsRegistered(t *testing.T) {
	for _, name := range []string{"host", "port", "min", "max", "data", "fake"} {
		if runCmd.Flags().Lookup(name) == nil {
			t.Errorf("run is missing --%s", name)
		}
		if sendCmd.Flags().Lookup(name) == nil {
			t.Errorf("send is missing --%s", name)
		}
	}
	if runCmd.Flags().Lookup("interval") == nil {
		t.Error("run is missing --interval")
	}
}

func TestTagCommand(t *testing.T) {
	out, err := execute(t, "", "tag", "--sealed=false", "Jack", "Bengaluru", "Mumbai")
	if err != nil {
		t.Fatalf("tag failed: %v", err)
	}

	want := "ad2cdbc4121c4378d725cd60ed74cb1e8c4d3055c61345a7afd775f2757881db\n"
	if out != want {
		t.Errorf("tag output = %q, want %q", out, want)
	}
}

func TestTagCommand_Sealed(t *testing.T) {
	out, err := execute(t, "", "tag", "--sealed", "Jack", "Bengaluru", "Mumbai")
	if err != nil {
		t.Fatalf("tag failed: %v", err)
	}

	var sealed codec.AuthenticatedRecord
	if err := json.Unmarshal([]byte(out), &sealed); err != nil {
		t.Fatalf("sealed output is not JSON: %v", err)
	}
	if !codec.VerifyTag(sealed.Record, sealed.Tag) {
		t.Errorf("sealed output %q does not verify", out)
	}
}

func TestTagCommand_WrongArgs(t *testing.T) {
	if _, err := execute(t, "", "tag", "Jack"); err == nil {
		t.Error("expected an error with one argument")
	}
}

func TestEncryptDecryptCommands(t *testing.T) {
	segment, err := execute(t, "", "--passphrase", testPassphrase, "encrypt", "hello world")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	segment = strings.TrimSpace(segment)

	out, err := execute(t, segment, "--passphrase", testPassphrase, "decrypt", "--verify=false")
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if out != "hello world\n" {
		t.Errorf("decrypt output = %q, want %q", out, "hello world\n")
	}
}

func TestDecryptCommand_Verify(t *testing.T) {
	c, err := codec.NewFromPassphrase(testPassphrase)
	if err != nil {
		t.Fatal(err)
	}
	good, err := c.SealAndEncrypt(codec.Record{Name: "A", Origin: "B", Destination: "C"})
	if err != nil {
		t.Fatal(err)
	}
	tampered, err := c.Encrypt([]byte(`{"name":"A","origin":"B","destination":"C","secret_key":"00"}`))
	if err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "", "--passphrase", testPassphrase, "--no-color", "decrypt", "--verify", good+"|"+tampered)
	if err == nil {
		t.Error("expected an error for the tampered segment")
	}
	if !strings.Contains(out, "ok: ") || !strings.Contains(out, "tampered: ") {
		t.Errorf("unexpected decrypt output %q", out)
	}
}

func TestDecryptCommand_VerifyColored(t *testing.T) {
	previous := color.NoColor
	color.NoColor = false
	t.Cleanup(func() { color.NoColor = previous })

	c, err := codec.NewFromPassphrase(testPassphrase)
	if err != nil {
		t.Fatal(err)
	}
	good, err := c.SealAndEncrypt(codec.Record{Name: "A", Origin: "B", Destination: "C"})
	if err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "", "--passphrase", testPassphrase, "--no-color=false", "decrypt", "--verify", good)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if !strings.HasPrefix(out, "\x1b[32mok\x1b[0m: ") {
		t.Errorf("expected a green ok label, got %q", out)
	}
}

func TestSendCommand(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- data
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	out, err := execute(t, "",
		"--passphrase", testPassphrase,
		"send", "--fake=false",
		"--host", "127.0.0.1", "--port", strconv.Itoa(port),
		"--min", "3", "--max", "3",
	)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if out != "sent 3 records\n" {
		t.Errorf("send output = %q", out)
	}

	var data []byte
	select {
	case data = <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("listener received nothing")
	}

	c, err := codec.NewFromPassphrase(testPassphrase)
	if err != nil {
		t.Fatal(err)
	}
	segments := framing.Segments(bytes.TrimSuffix(data, []byte("\n")))
	if len(segments) != 3 {
		t.Fatalf("got %d segments, want 3", len(segments))
	}
	for _, segment := range segments {
		plaintext, err := c.Decrypt(segment)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		var sealed codec.AuthenticatedRecord
		if err := json.Unmarshal(plaintext, &sealed); err != nil {
			t.Fatalf("unmarshal %q: %v", plaintext, err)
		}
		if !codec.VerifyTag(sealed.Record, sealed.Tag) {
			t.Errorf("record %+v does not verify", sealed.Record)
		}
	}
}

func TestSendCommand_InvalidRange(t *testing.T) {
	_, err := execute(t, "", "send", "--min", "10", "--max", "2")
	if err == nil {
		t.Error("expected an error when max is below min")
	}
}
