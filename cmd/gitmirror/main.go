package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/odvcencio/gitmirror/pkg/config"
	"github.com/odvcencio/gitmirror/pkg/core"
)

const version = "gitmirror 0.1.0-dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	fs := pflag.NewFlagSet("gitmirror", pflag.ContinueOnError)

	configPath := fs.StringP("config", "C", "/etc/gitmirror.toml", "configuration file path")
	forceClone := fs.BoolP("clone", "c", false, "force a full clone")
	displayDepth := fs.IntP("depth", "d", -1, "display depth (0 = full path)")
	haveOverride := fs.StringP("have", "h", "", "override have")
	keepPack := fs.BoolP("keep", "k", false, "keep the fetched pack on disk")
	lowMemory := fs.BoolP("low-memory", "l", false, "low-memory mode")
	forceRepair := fs.BoolP("repair", "r", false, "force repair")
	tag := fs.StringP("tag", "t", "", "fetch tag")
	localPack := fs.StringP("unpack-local", "u", "", "load pack from a local file instead of fetching")
	verbosity := fs.IntP("verbose", "v", 0, "verbosity 0-2")
	printVersion := fs.BoolP("version", "V", false, "print version and exit")
	wantOverride := fs.StringP("want", "w", "", "override want")

	if err := fs.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if *printVersion {
		fmt.Println(version)
		return 0
	}

	args := fs.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: gitmirror [flags] <section>")
		return 1
	}
	section := args[0]

	cfg, err := config.Load(*configPath, section)
	if err != nil {
		fmt.Fprintln(os.Stderr, core.Wrap(core.KindConfigInvalid, err))
		return core.ExitCode(core.Wrap(core.KindConfigInvalid, err))
	}

	opts := &core.Options{
		Config:       cfg,
		ForceClone:   *forceClone,
		ForceRepair:  *forceRepair,
		KeepPack:     *keepPack,
		LowMemory:    *lowMemory,
		ExplicitWant: *wantOverride,
		ExplicitHave: *haveOverride,
		TagName:      *tag,
		LocalPack:    *localPack,
		Verbosity:    *verbosity,
	}
	if *displayDepth >= 0 {
		cfg.DisplayDepth = *displayDepth
	}

	sess := core.NewSession(opts)
	result, err := sess.Run(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return core.ExitCode(err)
	}

	if *verbosity > 0 {
		fmt.Printf("%s: %s@%s (+%d ~%d -%d)\n", result.Mode, result.Branch, result.Want[:9],
			len(result.Added), len(result.Updated), len(result.Removed))
		if len(result.UpdatingNotices) > 0 {
			fmt.Fprintf(os.Stderr, "#\n# Please review the following file(s) for important changes.\n")
			for _, path := range result.UpdatingNotices {
				fmt.Fprintf(os.Stderr, "#\t%s\n", path)
			}
			fmt.Fprintf(os.Stderr, "#\n")
		}
	}
	return 0
}
