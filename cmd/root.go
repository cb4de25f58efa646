package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chronostore/chronostore/internal/options"
	"github.com/chronostore/chronostore/internal/server"
	"github.com/chronostore/chronostore/pkg/cslog"
	"github.com/chronostore/chronostore/pkg/replica"
)

var (
	cfgFile    string
	mode       string
	serverOpts = options.New()
	rootCmd    = &cobra.Command{
		Use:   "chronostore",
		Short: "chronostore, replication engine for a distributed time-series store.",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
	rootCmd.PersistentFlags().StringVar(&mode, "mode", "debug", "mode")
}

func initConfig() {
	vp := viper.New()
	if cfgFile != "" {
		vp.SetConfigFile(cfgFile)
		if err := vp.ReadInConfig(); err == nil {
			fmt.Println("Using config file:", vp.ConfigFileUsed())
		}
	}

	vp.SetEnvPrefix("cs")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()
	serverOpts.ConfigureWithViper(vp)
	_ = vp.BindPFlags(rootCmd.Flags())
}

func runServer() error {
	logOpts := cslog.NewOptions()
	logOpts.NodeId = serverOpts.NodeID
	logOpts.Level = serverOpts.Logger.Level
	logOpts.LogDir = serverOpts.Logger.Dir
	logOpts.LineNum = serverOpts.Logger.LineNum
	cslog.Configure(logOpts)

	// Standalone runner uses the in-process network, the production
	// transport registers real clients instead.
	network := replica.NewMemoryNetwork()
	s, err := server.New(serverOpts, network)
	if err != nil {
		return err
	}
	if err := s.Start(); err != nil {
		return err
	}
	defer s.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
