package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"gpuc/internal/lsp"
	"gpuc/internal/target"
	"gpuc/internal/version"
)

const lsName = "gpuc" // Name identifier for the language server

var log = commonlog.GetLogger("gpuc.lsp")

var rootCmd = &cobra.Command{
	Use:   "gpuc-lsp",
	Short: "Language server for .nir source programs",
	Args:  cobra.NoArgs,
	RunE:  runServer,
}

func init() {
	rootCmd.Version = version.Version
	rootCmd.Flags().Int("gen", 6, "target GPU generation used for compile diagnostics")
	rootCmd.Flags().Int("verbose", 1, "log verbosity")
	rootCmd.Flags().String("log", "", "log to this file instead of stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	gen, _ := cmd.Flags().GetInt("gen")
	verbosity, _ := cmd.Flags().GetInt("verbose")
	logFile, _ := cmd.Flags().GetString("log")

	var logPath *string
	if logFile != "" {
		logPath = &logFile
	}
	commonlog.Configure(verbosity, logPath)

	c, err := target.New(gen)
	if err != nil {
		return err
	}
	nirHandler := lsp.NewNIRHandler(c)

	// Wire up the handler with specific LSP method implementations
	handler := protocol.Handler{
		Initialize:                     nirHandler.Initialize,
		Initialized:                    nirHandler.Initialized,
		Shutdown:                       nirHandler.Shutdown,
		SetTrace:                       nirHandler.SetTrace,
		TextDocumentDidOpen:            nirHandler.TextDocumentDidOpen,
		TextDocumentDidClose:           nirHandler.TextDocumentDidClose,
		TextDocumentDidChange:          nirHandler.TextDocumentDidChange,
		TextDocumentCompletion:         nirHandler.TextDocumentCompletion,
		TextDocumentSemanticTokensFull: nirHandler.TextDocumentSemanticTokensFull,
	}

	s := server.NewServer(&handler, lsName, false)

	log.Infof("Starting gpuc LSP server %s for a%dxx...", version.Version, c.Gen)

	// Editors talk to the server over standard input/output
	if err := s.RunStdio(); err != nil {
		log.Errorf("Error starting gpuc LSP server: %s", err)
		return err
	}
	return nil
}
