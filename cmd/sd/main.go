package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/studiodesk/internal/client"
	"github.com/alfredjeanlab/studiodesk/internal/model"
	"github.com/alfredjeanlab/studiodesk/internal/ui"
)

var (
	serverAddr   string
	httpURL      string
	transport    string
	jsonOutput   bool
	authToken    string
	workspaceID  string
	userID       string
	role         string
	freelancerID string

	studioClient client.StudioClient
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultHTTPURL() string {
	if s := os.Getenv("STUDIO_HTTP_URL"); s != "" {
		return s
	}
	if r, ok := activeRemote(); ok && r.URL != "" {
		return r.URL
	}
	return "http://localhost:8080"
}

func defaultServer() string {
	if s := os.Getenv("STUDIO_SERVER"); s != "" {
		return s
	}
	if r, ok := activeRemote(); ok && r.GRPCAddr != "" {
		return r.GRPCAddr
	}
	return "localhost:9090"
}

func defaultToken() string {
	if s := os.Getenv("STUDIO_TOKEN"); s != "" {
		return s
	}
	r, _ := activeRemote()
	return r.Token
}

func defaultWorkspace() string {
	if s := os.Getenv("STUDIO_WORKSPACE"); s != "" {
		return s
	}
	r, _ := activeRemote()
	return r.Workspace
}

// currentScope is the caller identity assembled from the global flags.
func currentScope() model.Scope {
	return model.Scope{
		WorkspaceID:  workspaceID,
		UserID:       userID,
		Role:         model.Role(role),
		FreelancerID: freelancerID,
	}
}

func newClient() (client.StudioClient, error) {
	switch transport {
	case "http":
		return client.NewHTTPClient(httpURL, authToken), nil
	case "grpc":
		c, err := client.NewGRPCClient(serverAddr, authToken)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to server: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown transport %q (must be http or grpc)", transport)
	}
}

// noClient overrides the root PersistentPreRunE for commands that never
// talk to a server.
func noClient(cmd *cobra.Command, args []string) error { return nil }

var rootCmd = &cobra.Command{
	Use:           "sd <command>",
	Short:         "CLI client for the studiodesk service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		studioClient = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if studioClient != nil {
			studioClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", defaultServer(), "gRPC server address")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "http", "transport protocol (http or grpc)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", defaultToken(), "bearer token")
	rootCmd.PersistentFlags().StringVarP(&workspaceID, "workspace", "w", defaultWorkspace(), "workspace id")
	rootCmd.PersistentFlags().StringVar(&userID, "user", envOr("STUDIO_USER", ""), "acting user id")
	rootCmd.PersistentFlags().StringVar(&role, "role", envOr("STUDIO_ROLE", string(model.RoleOwner)), "acting role (owner, admin, manager, staff, freelancer)")
	rootCmd.PersistentFlags().StringVar(&freelancerID, "freelancer", envOr("STUDIO_FREELANCER", ""), "freelancer id for the freelancer role")

	rootCmd.AddGroup(
		&cobra.Group{ID: "lists", Title: "Lists:"},
		&cobra.Group{ID: "rows", Title: "Rows:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(studioHelpFunc())

	// Lists
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(browseCmd)
	rootCmd.AddCommand(listsCmd)
	rootCmd.AddCommand(whoCmd)

	// Rows
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	ui.Init()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderError("Error: "+err.Error()))
		os.Exit(1)
	}
}
