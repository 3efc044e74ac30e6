package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/keithlinneman/linnemanlabs-starter/internal/bundle"
	"github.com/keithlinneman/linnemanlabs-starter/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-starter/internal/log"
	"github.com/keithlinneman/linnemanlabs-starter/internal/pipeline"
	v "github.com/keithlinneman/linnemanlabs-starter/internal/version"
)

const envPrefix = "STARTER_"

type commandContext struct {
	goFS   *flag.FlagSet
	conf   cfg.App
	logger log.Logger
}

func newCommandContext(goFS *flag.FlagSet) *commandContext {
	c := &commandContext{goFS: goFS}
	cfg.Register(goFS, &c.conf)
	return c
}

// load applies env fallbacks, validates, and builds a text logger on stderr.
func (c *commandContext) load(cmd *cobra.Command) error {
	// cobra parses through pflag, so the go FlagSet never records which
	// flags were given. Replaying them marks them explicit for FillFromEnv.
	var replayErr error
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if c.goFS.Lookup(f.Name) == nil || replayErr != nil {
			return
		}
		replayErr = c.goFS.Set(f.Name, f.Value.String())
	})
	if replayErr != nil {
		return replayErr
	}

	errOut := cmd.ErrOrStderr()
	cfg.FillFromEnv(c.goFS, envPrefix, func(format string, args ...any) {
		fmt.Fprintf(errOut, format+"\n", args...)
	})
	if err := cfg.Validate(c.conf); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	lvl, _ := log.ParseLevel(c.conf.LogLevel)
	if lvl < slog.LevelWarn && !cmd.Flags().Changed("log-level") {
		if _, set := os.LookupEnv(cfg.EnvKey(envPrefix, "log-level")); !set {
			lvl = slog.LevelWarn
		}
	}
	// stacks are noise on a terminal
	lg, err := log.New(log.Options{
		App:             "starter",
		Component:       "starterctl",
		Version:         v.Get().Version,
		Level:           lvl,
		StacktraceLevel: slog.LevelError + 4,
		Writer:          errOut,
	})
	if err != nil {
		return err
	}
	c.logger = lg
	return nil
}

// builder runs the shared pipeline. Archives are never published from the
// CLI so only the SSM client is created.
func (c *commandContext) builder(cmd *cobra.Command) (*bundle.Builder, error) {
	ctx := cmd.Context()
	deps := pipeline.Deps{Logger: c.logger}
	if c.conf.PackagesSSMParam != "" {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		deps.SSM = ssm.NewFromConfig(awsCfg)
	}
	b, _, err := pipeline.Build(ctx, c.conf, deps)
	return b, err
}
