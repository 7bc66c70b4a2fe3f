package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/quillhaven/docsmith/internal/config"
	"github.com/quillhaven/docsmith/internal/httpapi"
	"github.com/quillhaven/docsmith/internal/registry"
	"github.com/quillhaven/docsmith/internal/toolcli"
	"github.com/quillhaven/docsmith/internal/tools"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	// Import all tool packages to register them
	_ "github.com/quillhaven/docsmith/internal/imports"
)

// Version information (set during build)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Global resources that need cleanup. Atomics because signal handlers and
// normal exit can race.
var (
	logFileHandle atomic.Pointer[os.File]
	isStdioMode   atomic.Bool
)

// parseLogLevel reads LOG_LEVEL, defaulting to warn.
func parseLogLevel() logrus.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.WarnLevel
	}
}

func main() {
	// Optional .env in the working directory; missing file is fine
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Discard output until the transport mode is known - early writes to
	// stdout would corrupt the stdio protocol
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(parseLogLevel())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Optional ~/.docsmith/config.yaml fills in endpoints and credentials
	// that the environment leaves unset
	if err := config.ApplyFileConfig(logger); err != nil {
		logger.WithError(err).Warn("Failed to apply config file")
	}

	registry.Init(logger)

	defer performCleanup(logger)

	app := &cli.Command{
		Name:    "docsmith",
		Usage:   "MCP server for document extraction, conversion and generation",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "transport",
				Aliases: []string{"t"},
				Value:   "stdio",
				Usage:   "Transport type (stdio, sse, or http)",
			},
			&cli.StringFlag{
				Name:  "port",
				Value: "18080",
				Usage: "Port to use for HTTP transports (SSE and Streamable HTTP)",
			},
			&cli.StringFlag{
				Name:  "base-url",
				Value: "http://localhost",
				Usage: "Base URL for HTTP transports",
			},
			&cli.StringFlag{
				Name:  "endpoint-path",
				Value: "/http",
				Usage: "Endpoint path for Streamable HTTP transport",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print version information",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Printf("docsmith version %s\n", Version)
					fmt.Printf("Commit: %s\n", Commit)
					fmt.Printf("Built: %s\n", BuildDate)
					return nil
				},
			},
			{
				Name:  "api",
				Usage: "Run the JSON web API instead of the MCP server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Value: ":8080",
						Usage: "Listen address for the web API",
					},
				},
				Action: func(cliCtx context.Context, cmd *cli.Command) error {
					configureLogging(logger, false)
					server, err := httpapi.NewServer(logger, Version, "")
					if err != nil {
						return err
					}
					return server.Serve(cliCtx, cmd.String("addr"))
				},
			},
			{
				Name:      "tool",
				Usage:     "Invoke a tool directly without starting a server",
				ArgsUsage: "<tool-name> [--key=value ... | '{json}']",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Emit the raw tool result as JSON",
					},
					&cli.BoolFlag{
						Name:  "list",
						Usage: "List the enabled tools and exit",
					},
					&cli.BoolFlag{
						Name:  "info",
						Usage: "Show the tool's parameters and usage guidance instead of running it",
					},
				},
				Action: func(cliCtx context.Context, cmd *cli.Command) error {
					configureLogging(logger, false)
					output := toolcli.OutputText
					if cmd.Bool("json") {
						output = toolcli.OutputJSON
					}
					runner := toolcli.NewRunner(logger, registry.GetCache(), output)
					if cmd.Bool("list") {
						return runner.ListTools()
					}
					args := cmd.Args().Slice()
					if len(args) == 0 {
						return fmt.Errorf("missing tool name (use 'docsmith tool --list')")
					}
					if cmd.Bool("info") {
						return runner.DescribeTool(args[0])
					}
					return runner.RunTool(cliCtx, args[0], args[1:])
				},
			},
		},
		Action: func(cliCtx context.Context, cmd *cli.Command) error {
			transport := cmd.String("transport")
			port := cmd.String("port")
			baseURL := cmd.String("base-url")

			isStdioMode.Store(transport == "stdio")
			configureLogging(logger, isStdioMode.Load())

			if err := tools.InitGlobalErrorLogger(logger); err != nil {
				logger.WithError(err).Debug("Failed to initialise tool error logger")
			}

			if transport != "stdio" {
				logger.Infof("Starting docsmith version %s (commit: %s, built: %s)",
					Version, Commit, BuildDate)
			}

			mcpSrv := mcpserver.NewMCPServer("docsmith", "Docsmith Document Server")

			enabledTools := registry.GetEnabledTools()
			logger.WithField("tool_count", len(enabledTools)).Debug("Registering tools")

			for toolName := range enabledTools {
				name := toolName
				tool := enabledTools[name]

				if transport != "stdio" {
					logger.Infof("Registering tool: %s", name)
				}

				mcpSrv.AddTool(tool.Definition(), func(toolCtx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
					currentTool, ok := registry.GetTool(name)
					if !ok {
						return nil, fmt.Errorf("tool not found: %s", name)
					}

					args, ok := request.Params.Arguments.(map[string]any)
					if !ok {
						return nil, fmt.Errorf("invalid arguments type: expected map[string]any, got %T", request.Params.Arguments)
					}

					result, err := currentTool.Execute(toolCtx, registry.GetLogger(), registry.GetCache(), args)
					if err != nil {
						if transport != "stdio" {
							logger.WithError(err).Errorf("Tool execution failed: %s", name)
						}
						if errorLogger := tools.GetGlobalErrorLogger(); errorLogger != nil && errorLogger.IsEnabled() {
							errorLogger.LogToolError(name, args, err, transport)
						}
						return nil, fmt.Errorf("tool execution failed: %w", err)
					}
					return result, nil
				})
			}

			switch transport {
			case "stdio":
				return mcpserver.ServeStdio(mcpSrv)
			case "sse":
				logger.WithField("port", port).Debug("Starting SSE server")
				sseServer := mcpserver.NewSSEServer(mcpSrv, mcpserver.WithBaseURL(baseURL+"/sse"))
				return sseServer.Start(":" + port)
			case "http":
				return startStreamableHTTPServer(cmd, mcpSrv, logger)
			default:
				return fmt.Errorf("unsupported transport: %s", transport)
			}
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		// No logging in stdio mode: anything on stdout or stderr can break
		// the MCP protocol framing
		if !isStdioMode.Load() {
			logger.Fatalf("Error: %v", err)
		}
		os.Exit(1)
	}
}

// configureLogging sends log output to ~/.docsmith/logs/docsmith.log, falling
// back to stderr (or discard, in stdio mode) when the file cannot be opened.
func configureLogging(logger *logrus.Logger, stdio bool) {
	fallback := func() {
		if stdio {
			logger.SetOutput(io.Discard)
			logrus.SetOutput(io.Discard)
		} else {
			logger.SetOutput(os.Stderr)
			logrus.SetOutput(os.Stderr)
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fallback()
		return
	}
	logDir := filepath.Join(homeDir, ".docsmith", "logs")
	if err := os.MkdirAll(logDir, 0700); err != nil {
		fallback()
		return
	}
	file, err := os.OpenFile(filepath.Join(logDir, "docsmith.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		fallback()
		return
	}
	logFileHandle.Store(file)
	logger.SetOutput(file)
	logrus.SetOutput(file)

	logLevel := parseLogLevel()
	if stdio && logLevel < logrus.WarnLevel {
		logLevel = logrus.WarnLevel
	}
	logger.SetLevel(logLevel)
	logrus.SetLevel(logLevel)
}

// performCleanup releases global resources on shutdown.
func performCleanup(logger *logrus.Logger) {
	if file := logFileHandle.Load(); file != nil {
		_ = file.Close()
	}
	if errorLogger := tools.GetGlobalErrorLogger(); errorLogger != nil {
		if err := errorLogger.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close tool error logger")
		}
	}
}

// startStreamableHTTPServer runs the Streamable HTTP transport.
func startStreamableHTTPServer(cmd *cli.Command, mcpServer *mcpserver.MCPServer, logger *logrus.Logger) error {
	port := cmd.String("port")
	endpointPath := cmd.String("endpoint-path")

	logger.Infof("Starting Streamable HTTP server on port %s with endpoint %s", port, endpointPath)

	opts := []mcpserver.StreamableHTTPOption{
		mcpserver.WithEndpointPath(endpointPath),
		mcpserver.WithHeartbeatInterval(30 * time.Second),
		mcpserver.WithLogger(&logrusAdapter{logger: logger}),
	}

	httpServer := mcpserver.NewStreamableHTTPServer(mcpServer, opts...)
	if err := httpServer.Start(":" + port); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// logrusAdapter bridges logrus to the mcp-go logger interface.
type logrusAdapter struct {
	logger *logrus.Logger
}

func (l *logrusAdapter) Debugf(format string, args ...any) { l.logger.Debugf(format, args...) }
func (l *logrusAdapter) Infof(format string, args ...any)  { l.logger.Infof(format, args...) }
func (l *logrusAdapter) Warnf(format string, args ...any)  { l.logger.Warnf(format, args...) }
func (l *logrusAdapter) Errorf(format string, args ...any) { l.logger.Errorf(format, args...) }
