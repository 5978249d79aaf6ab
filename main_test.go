package main

import (
	"bytes"
	"strings"
	"testing"
)

func runCLI(t *testing.T, stdin string, args ...string) string {
	t.Helper()

	rootCmd, a := newRootCmd()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	if closeErr := a.close(); closeErr != nil {
		t.Fatalf("close after %v: %v", args, closeErr)
	}
	if err != nil {
		t.Fatalf("stratizen %v failed: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestCLISendThreadInbox(t *testing.T) {
	t.Setenv("STRATIZEN_DATA_DIR", t.TempDir())
	t.Setenv("STRATIZEN_LOG_LEVEL", "off")

	runCLI(t, "", "send", "bob", "hello", "bob", "--as", "alice")
	runCLI(t, "", "send", "alice", "hi", "alice", "--as", "bob")
	runCLI(t, "", "send", "carol", "later", "--as", "alice", "--token", "t-1")
	runCLI(t, "", "send", "carol", "later", "--as", "alice", "--token", "t-1")

	thread := runCLI(t, "", "thread", "bob", "--as", "alice")
	if !strings.Contains(thread, "alice: hello bob") || !strings.Contains(thread, "bob: hi alice") {
		t.Fatalf("unexpected thread output:\n%s", thread)
	}
	if strings.Index(thread, "hello bob") > strings.Index(thread, "hi alice") {
		t.Fatalf("expected oldest message first:\n%s", thread)
	}

	carol := runCLI(t, "", "thread", "carol", "--as", "alice")
	if strings.Count(carol, "later") != 1 {
		t.Fatalf("expected tokened resend to be suppressed:\n%s", carol)
	}

	inbox := runCLI(t, "", "inbox", "--as", "alice")
	lines := strings.Split(strings.TrimSpace(inbox), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 inbox rows, got:\n%s", inbox)
	}
	if !strings.Contains(lines[0], "carol") || !strings.Contains(lines[1], "bob") {
		t.Fatalf("expected carol before bob:\n%s", inbox)
	}

	empty := runCLI(t, "", "inbox", "--as", "nobody")
	if !strings.Contains(empty, "No conversations yet.") {
		t.Fatalf("expected empty inbox message, got:\n%s", empty)
	}
}

func TestCLIChatSendsLinesAndEchoesThem(t *testing.T) {
	t.Setenv("STRATIZEN_DATA_DIR", t.TempDir())
	t.Setenv("STRATIZEN_LOG_LEVEL", "off")

	out := runCLI(t, "first line\n\nsecond line\n", "chat", "bob", "--as", "alice")
	if !strings.Contains(out, "alice: first line") || !strings.Contains(out, "alice: second line") {
		t.Fatalf("expected typed lines to be echoed through the subscription:\n%s", out)
	}

	thread := runCLI(t, "", "thread", "alice", "--as", "bob")
	if strings.Count(thread, "alice:") != 2 {
		t.Fatalf("expected 2 stored chat lines, got:\n%s", thread)
	}
}

func TestCLIThreadReportsUnreadUntilMarkedRead(t *testing.T) {
	t.Setenv("STRATIZEN_DATA_DIR", t.TempDir())
	t.Setenv("STRATIZEN_LOG_LEVEL", "off")
	t.Setenv("STRATIZEN_TRACK_UNREAD", "true")

	runCLI(t, "", "send", "bob", "one", "--as", "alice")
	runCLI(t, "", "send", "bob", "two", "--as", "alice")

	thread := runCLI(t, "", "thread", "alice", "--as", "bob")
	if !strings.Contains(thread, "2 unread") {
		t.Fatalf("expected 2 unread, got:\n%s", thread)
	}

	runCLI(t, "", "read", "alice", "--as", "bob")
	thread = runCLI(t, "", "thread", "alice", "--as", "bob")
	if strings.Contains(thread, "unread") {
		t.Fatalf("expected no unread after read, got:\n%s", thread)
	}
}
