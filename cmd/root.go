// Package cmd implements the command-line interface for the a2a-go task
// execution core: a server launcher and a thin client for talking to any
// A2A-compliant agent.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	projectName = "a2a-go"
	cfgFile     string

	rootCmd = &cobra.Command{
		Use:   projectName,
		Short: "Agent-to-Agent (A2A) task execution core",
		Long:  longRoot,
	}
)

// Execute is the CLI's entry point.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"optional config file (defaults to environment variables only)",
	)
}

// initConfig wires viper to read the enumerated environment variables
// directly (spec §6 "Environment configuration"); an optional file only
// overrides values a deployment wants to pin outside the environment.
func initConfig() {
	viper.AutomaticEnv()

	for _, key := range []string{
		"STORAGE_TYPE", "DATABASE_URL",
		"SCHEDULER_TYPE", "REDIS_URL",
		"AUTH_ENABLED", "AUTH_PROVIDER",
		"GRPC_ENABLED", "GRPC_HOST", "GRPC_PORT", "GRPC_MAX_WORKERS",
		"TELEMETRY_ENABLED", "OLTP_ENDPOINT",
		"PORT", "AGENT_DID", "AGENT_NAME", "AGENT_AUTHOR",
		"S3_ENDPOINT", "S3_ACCESS_KEY", "S3_SECRET_KEY", "S3_BUCKET", "S3_USE_SSL",
	} {
		_ = viper.BindEnv(key, key)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		_ = viper.ReadInConfig()
	}
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var longRoot = `
a2a-go is a reference Go implementation of the Agent-to-Agent (A2A) task
execution core: task lifecycle, storage, scheduling, and a JSON-RPC/SSE/gRPC
surface over a user-supplied handler.
`
