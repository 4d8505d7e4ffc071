package main

import (
	"os"

	"github.com/spf13/cobra"
)

// flagEnv maps a command flag onto the env key the module options read
type flagEnv struct {
	flag string
	env  string
}

// bindEnv exports changed flags so FromConfig readers see them; unset flags leave env alone
func bindEnv(cmd *cobra.Command, pairs []flagEnv) {
	for _, p := range pairs {
		f := cmd.Flags().Lookup(p.flag)
		if f == nil || !f.Changed {
			continue
		}
		mustSetEnv(p.env, f.Value.String())
	}
}

func mustSetEnv(key, val string) {
	if val != "" {
		_ = os.Setenv(key, val)
	}
}
