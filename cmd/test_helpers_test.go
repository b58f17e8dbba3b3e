package cmd

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// executeRoot runs the root command with args in an isolated HOME and
// returns its output and error.
func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	resetCLIState(t)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return buf.String(), err
}

// resetCLIState restores config, flags and viper to their defaults.
func resetCLIState(t *testing.T) {
	t.Helper()
	reset := func() {
		viper.Reset()
		*cliConfig = *newCLIConfig()
		scanOpts = scanOptions{progress: true}
		cfgFile = ""
		logLevel = "warn"
		for _, fs := range []*pflag.FlagSet{scanCmd.Flags(), rootCmd.PersistentFlags()} {
			fs.VisitAll(func(f *pflag.Flag) { f.Changed = false })
		}
		globalAppContext = nil
	}
	reset()
	t.Cleanup(reset)
}

func withoutColor(t *testing.T) {
	t.Helper()
	original := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = original })
}
