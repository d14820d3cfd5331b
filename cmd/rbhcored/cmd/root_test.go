package cmd

import "testing"

func TestSubcommandsAreRegisteredWithRootCmd(t *testing.T) {
	want := []string{"run", "start", "stop", "status", "reset", "version"}
	got := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		got[c.Name()] = true
	}
	for _, name := range want {
		if !got[name] {
			t.Errorf("expected %q to be registered with rootCmd", name)
		}
	}
}

func TestRunCmdRequiresPolicyFlag(t *testing.T) {
	flag := runCmd.Flags().Lookup("policy")
	if flag == nil {
		t.Fatal("expected run command to declare a --policy flag")
	}
}
