// Copyright © 2020 Jonathan Whitaker <jonathan@whitaker.io>

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	crush "github.com/crush-sh/crush"
	"github.com/crush-sh/crush/ast"
	"github.com/crush-sh/crush/builtins"
	"github.com/crush-sh/crush/debugserver"
	"github.com/crush-sh/crush/telemetry"
)

var cfgFile string
var addr string

var rootCmd = &cobra.Command{
	Use:   "crush",
	Short: "a typed, concurrent row-pipeline shell engine",
	Long:  ``,
}

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "compile and run every job described in a YAML document",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

var checkCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "compile a YAML document without running it",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

var scopeCmd = &cobra.Command{
	Use:   "scope",
	Short: "inspect the built-in root scope",
}

var scopeDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "print every name visible from the root scope and its type",
	RunE:  runScopeDump,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "host the /health and /scopes/:id introspection server",
	RunE:  runServe,
}

// Execute runs the root command, matching the teacher's cmd/cmd/root.go
// Execute shape.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.crush.yaml)")
	serveCmd.Flags().StringVar(&addr, "addr", ":8080", "listen address for the debug server")
	scopeCmd.AddCommand(scopeDumpCmd)
	rootCmd.AddCommand(runCmd, checkCmd, scopeCmd, serveCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".crush")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func rootScope() (*crush.Scope, error) {
	scope := crush.NewRootScope()
	if err := builtins.Register(scope); err != nil {
		return nil, err
	}
	return scope, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	doc, err := ast.Parse(data)
	if err != nil {
		return err
	}

	scope, err := rootScope()
	if err != nil {
		return err
	}

	jobs, err := doc.Compile(scope)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	telem, err := telemetry.New(ctx)
	if err != nil {
		return err
	}

	runner := crush.NewRunner(nil)
	runner.Option = &crush.Option{Telemetry: telem}

	return crush.RunAll(ctx, runner, jobs, scope)
}

func runCheck(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	doc, err := ast.Parse(data)
	if err != nil {
		return err
	}

	scope, err := rootScope()
	if err != nil {
		return err
	}

	jobs, err := doc.Compile(scope)
	if err != nil {
		return err
	}

	fmt.Printf("ok: %d job(s) compiled\n", len(jobs))
	return nil
}

func runScopeDump(cmd *cobra.Command, args []string) error {
	scope, err := rootScope()
	if err != nil {
		return err
	}

	for _, pair := range scope.Dump() {
		fmt.Printf("%s\t%s\n", pair.Name, pair.Type)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	scope, err := rootScope()
	if err != nil {
		return err
	}

	server := debugserver.New("crush", nil)
	server.TrackScope(scope)

	ctx, cancel := signalContext()
	defer cancel()

	return server.Run(ctx, addr)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		cancel()
	}()
	return ctx, cancel
}
