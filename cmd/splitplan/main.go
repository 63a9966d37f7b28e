// Command splitplan prints the split distances for a race.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/jrgparkinson/tracksplits/internal/races"
	"github.com/jrgparkinson/tracksplits/internal/splits"
	"github.com/jrgparkinson/tracksplits/internal/view"
)

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("splitplan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	raceName := fs.String("race", "", "race to plan, e.g. 1500m")
	interval := fs.Float64("interval", 0, "distance between splits in metres (default: the race's lap length)")
	countUp := fs.Bool("count-up", false, "count splits up from the start instead of back from the finish")
	racesFile := fs.String("races", "", "TOML race catalog (default: built-in)")
	list := fs.Bool("list", false, "list the races in the catalog")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	catalog := races.Default()
	if *racesFile != "" {
		c, err := races.LoadFile(*racesFile)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		catalog = c
	}

	if *list {
		for _, r := range catalog.Races() {
			fmt.Fprintf(stdout, "%s\t%gm\tlap %gm\n", r.DisplayName, r.Distance, r.LapLength)
		}
		return 0
	}
	if *raceName == "" {
		fmt.Fprintln(stderr, "-race is required")
		fs.Usage()
		return 2
	}

	race, err := catalog.Lookup(*raceName)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	intervalSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "interval" {
			intervalSet = true
		}
	})
	if !intervalSet {
		*interval = race.LapLength
	}
	plan, err := splits.Plan(race, *interval, !*countUp)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	log.WithFields(log.Fields{"race": race.DisplayName, "interval": *interval, "splits": len(plan)}).Debug("planned splits")
	fmt.Fprintln(stdout, view.FormatDistances(plan))
	return 0
}

func main() {
	log.SetOutput(os.Stderr)
	if os.Getenv("LOG_LEVEL") == "debug" {
		log.SetLevel(log.DebugLevel)
	}
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
