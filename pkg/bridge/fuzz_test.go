// Copyright 2024-2026 Aiku AI

package bridge

import (
	"strings"
	"testing"
)

func FuzzParseCommand(f *testing.F) {
	f.Add("/connect $mbb2$AbCdEfGhIj1234567890")
	f.Add("/connect_$mbb2$AbCdEfGhIj1234567890")
	f.Add("/list")
	f.Add("  /auth   secret  ")
	f.Add("")
	f.Add("/ x")
	f.Add(string([]byte{0xff, '_'}))

	f.Fuzz(func(t *testing.T, body string) {
		cmd := ParseCommand(body)
		if strings.IndexFunc(cmd.Name, isCommandSplitter) >= 0 {
			t.Errorf("ParseCommand(%q): name %q contains a separator", body, cmd.Name)
		}
		if cmd.Args != strings.TrimSpace(cmd.Args) {
			t.Errorf("ParseCommand(%q): args %q are not trimmed", body, cmd.Args)
		}
		if !cmd.HasArgs && cmd.Name != strings.TrimSpace(body) {
			t.Errorf("ParseCommand(%q): got name %q without args", body, cmd.Name)
		}
		if again := ParseCommand(body); again != cmd {
			t.Errorf("ParseCommand(%q) is not deterministic: %+v then %+v", body, cmd, again)
		}
	})
}

func FuzzParseProviderID(f *testing.F) {
	f.Add("telegram:-100123")
	f.Add("matrix:!room:example.org")
	f.Add(":missing")
	f.Add("missing:")
	f.Add("")

	f.Fuzz(func(t *testing.T, s string) {
		id, ok := ParseProviderID(s)
		if !ok {
			return
		}
		if id.IsZero() {
			t.Errorf("ParseProviderID(%q) accepted an incomplete id %+v", s, id)
		}
		if id.String() != s {
			t.Errorf("round trip: got %q, want %q", id.String(), s)
		}
	})
}
