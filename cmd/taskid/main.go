package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/goliatone/go-taskstate/identity"
)

var cli struct {
	Prefix string `help:"Identifier prefix." default:"task" short:"p"`

	Generate struct {
		Type  string `arg:"" optional:"" help:"Optional task type label."`
		Count int    `help:"Number of ids to mint." default:"1" short:"n"`
	} `cmd:"" help:"Mint task identifiers."`

	Parse struct {
		ID string `arg:"" help:"Identifier to decompose."`
	} `cmd:"" help:"Decompose an identifier into its fields."`

	Validate struct {
		ID string `arg:"" help:"Identifier to check."`
	} `cmd:"" help:"Check an identifier against the expected shape."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("taskid"),
		kong.Description("Mint and inspect task identifiers."),
		kong.UsageOnError(),
	)

	gen, err := identity.New(cli.Prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	switch ctx.Command() {
	case "generate", "generate <type>":
		for i := 0; i < cli.Generate.Count; i++ {
			id, err := gen.Generate(cli.Generate.Type)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(id)
		}
	case "parse <id>":
		parsed, err := gen.Parse(cli.Parse.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("prefix:    %s\n", parsed.Prefix)
		if parsed.TaskType != "" {
			fmt.Printf("type:      %s\n", parsed.TaskType)
		}
		fmt.Printf("timestamp: %s\n", parsed.Timestamp.Format("2006-01-02 15:04:05 MST"))
		fmt.Printf("uuid:      %s\n", parsed.UUID)
	case "validate <id>":
		if !gen.Validate(cli.Validate.ID) {
			fmt.Println("invalid")
			os.Exit(1)
		}
		fmt.Println("valid")
	default:
		ctx.PrintUsage(false)
		os.Exit(1)
	}
}
