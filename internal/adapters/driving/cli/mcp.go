package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/kbengine/internal/adapters/driving/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server for AI assistant integration.

The server exposes the search_knowledge_base and add_documents tools and a
kbengine://collections resource. By default it communicates over stdio using
JSON-RPC.

Use --port to start an HTTP server instead, which enables:
  - Testing with MCP Inspector web UI
  - Remote access via HTTP

Examples:
  # Stdio mode (default, for desktop assistants)
  kbengine mcp serve

  # HTTP mode (for MCP Inspector, remote access)
  kbengine mcp serve --port 8080

  # Read-only: search without the add_documents tool
  kbengine mcp serve --read-only

Assistant configuration:
  {
    "mcpServers": {
      "kbengine": {
        "command": "/path/to/kbengine",
        "args": ["mcp", "serve"]
      }
    }
  }`,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	mcpServeCmd.Flags().Bool("read-only", false, "do not expose the add_documents tool")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}
	readOnly, err := cmd.Flags().GetBool("read-only")
	if err != nil {
		return fmt.Errorf("getting read-only flag: %w", err)
	}

	ports := &mcp.Ports{
		Search:            searchService,
		Collections:       collectionService,
		Documents:         documentService,
		DefaultCollection: targetCollection(),
	}
	if !readOnly {
		ports.Ingest = ingestService
	}

	server, err := mcp.NewServer(ports)
	if err != nil {
		return err
	}

	if port > 0 {
		addr := fmt.Sprintf(":%d", port)
		fmt.Fprintf(cmd.OutOrStdout(), "MCP server listening on http://localhost%s/mcp\n", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}

	return server.Run(cmd.Context())
}
