// Command loom is the document tool: validate a document, resolve and
// print its tree, or serve it with the inspection endpoints attached.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/go-loom/loom/pkg/document"
	"github.com/go-loom/loom/pkg/engine"
	"github.com/go-loom/loom/pkg/render"
)

// Version is set at build time.
var Version = "0.1.0-dev"

// command is one CLI subcommand.
type command struct {
	name  string
	short string
	usage string
	run   func(args []string) error
}

var commands = []*command{
	{
		name:  "validate",
		short: "Check a document's structure without resolving it",
		usage: "loom validate <document>",
		run:   runValidate,
	},
	{
		name:  "render",
		short: "Resolve a document and print its render tree",
		usage: "loom render [-json] <document>",
		run:   runRender,
	},
	{
		name:  "serve",
		short: "Load a document and serve the inspection endpoints",
		usage: "loom serve [-port N] <document>",
		run:   runServe,
	},
	{
		name:  "version",
		short: "Print the tool version",
		usage: "loom version",
		run: func([]string) error {
			fmt.Println("loom", Version)
			return nil
		},
	},
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" || args[0] == "-h" {
		printHelp()
		return
	}

	for _, cmd := range commands {
		if cmd.name != args[0] {
			continue
		}
		if err := cmd.run(args[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "loom %s: %v\n", cmd.name, err)
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "loom: unknown command %q\n\n", args[0])
	printHelp()
	os.Exit(1)
}

func printHelp() {
	fmt.Println("Loom - declarative documents, resolved and served")
	fmt.Println()
	fmt.Println("Usage: loom <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	for _, cmd := range commands {
		fmt.Printf("  %-10s %s\n", cmd.name, cmd.short)
	}
}

// loadDocument decodes a document file, picking the codec by extension.
func loadDocument(path string) (*document.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return document.DecodeYAML(data)
	default:
		return document.DecodeJSON(data)
	}
}

func runValidate(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: loom validate <document>")
	}
	doc, err := loadDocument(args[0])
	if err != nil {
		return err
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	fmt.Printf("%s: ok\n", args[0])
	return nil
}

func runRender(args []string) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print the tree as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: loom render [-json] <document>")
	}

	doc, err := loadDocument(fs.Arg(0))
	if err != nil {
		return err
	}
	e := engine.New()
	if err := e.LoadDocument(doc); err != nil {
		return err
	}

	root := e.Render()
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(treeJSON(root))
	}
	printTree(root, 0)
	return nil
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	port := fs.Int("port", 7473, "inspection server port")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: loom serve [-port N] <document>")
	}

	doc, err := loadDocument(fs.Arg(0))
	if err != nil {
		return err
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	e := engine.New(engine.WithLogger(logger))
	if err := e.LoadDocument(doc); err != nil {
		return err
	}

	actual, err := e.StartDebugServer(*port)
	if err != nil {
		return err
	}
	defer e.StopDebugServer()
	logger.Info().Int("port", actual).Msg("serving; endpoints: /state /render-tree /view-tree /dirty /watch")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	return nil
}

func printTree(n *render.Node, depth int) {
	fmt.Printf("%s%s#%s\n", strings.Repeat("  ", depth), n.Kind, n.ID)
	for _, child := range n.Children {
		printTree(child, depth+1)
	}
}

type jsonNode struct {
	ID       string     `json:"id"`
	Kind     string     `json:"kind"`
	Content  any        `json:"content,omitempty"`
	Children []jsonNode `json:"children,omitempty"`
}

func treeJSON(n *render.Node) jsonNode {
	out := jsonNode{ID: n.ID, Kind: n.Kind, Content: n.Content}
	for _, child := range n.Children {
		out.Children = append(out.Children, treeJSON(child))
	}
	return out
}
