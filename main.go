/*
Copyright 2022 The l7mp/stunner team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/go-logr/logr"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/l7mp/liverel/internal/buildinfo"
	"github.com/l7mp/liverel/pkg/query"
	"github.com/l7mp/liverel/pkg/relation"
	"github.com/l7mp/liverel/pkg/repository/sqlite"
	"github.com/l7mp/liverel/pkg/retain"
	"github.com/l7mp/liverel/pkg/visualize"
)

var (
	version    = "dev"
	commitHash = "n/a"
	buildDate  = "<unknown>"
)

type config struct {
	catalog, query, db, format string
	fixtures, push             bool
}

func main() {
	var c config
	flag.StringVar(&c.catalog, "catalog", "", "The YAML catalog declaring the sets, attributes and fixtures. Mandatory.")
	flag.StringVar(&c.query, "query", "", "The YAML query to evaluate. If empty, the catalog sets are listed.")
	flag.StringVar(&c.db, "db", "", "SQLite database to pull the base sets from.")
	flag.StringVar(&c.format, "format", "table", "Output format: table, dot or mermaid.")
	flag.BoolVar(&c.fixtures, "fixtures", true, "Load the fixtures declared in the catalog.")
	flag.BoolVar(&c.push, "push", false, "Write the base sets back to the database before evaluating the query.")

	opts := zap.Options{
		Development:     true,
		DestWriter:      os.Stderr,
		StacktraceLevel: zapcore.Level(3),
		TimeEncoder:     zapcore.RFC3339NanoTimeEncoder,
	}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	logger := zap.New(zap.UseFlagOptions(&opts)).WithName("liverel")
	setupLog := logger.WithName("setup")

	buildInfo := buildinfo.BuildInfo{Version: version, CommitHash: commitHash, BuildDate: buildDate}
	setupLog.Info(fmt.Sprintf("starting liverel %s", buildInfo.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, c, logger, os.Stdout); err != nil {
		setupLog.Error(err, "problem running query")
		os.Exit(1)
	}
}

func run(ctx context.Context, c config, log logr.Logger, out io.Writer) (retErr error) {
	if c.catalog == "" {
		return errors.New("no catalog given")
	}
	data, err := os.ReadFile(c.catalog)
	if err != nil {
		return err
	}

	reg, err := relation.NewRegistry(relation.Options{Logger: log})
	if err != nil {
		return err
	}
	defer func() { retErr = errors.Join(retErr, reg.Close()) }()

	if err := reg.LoadCatalog(data); err != nil {
		return err
	}
	if c.fixtures {
		if err := reg.LoadFixtures(); err != nil {
			return err
		}
	}

	if c.db != "" {
		store, err := sqlite.NewStore(c.db, log)
		if err != nil {
			return err
		}
		defer func() { retErr = errors.Join(retErr, store.Close()) }()

		for _, set := range reg.Sets() {
			if c.push {
				if err := relation.Push(ctx, store, set); err != nil {
					return err
				}
			}
			if err := relation.Pull(ctx, store, set); err != nil {
				return err
			}
		}
	}

	if c.query == "" {
		for _, set := range reg.Sets() {
			n, _ := set.Len()
			fmt.Fprintf(out, "%s\t%d tuples\n", set.Name(), n)
		}
		return nil
	}

	data, err = os.ReadFile(c.query)
	if err != nil {
		return err
	}
	q, err := query.Parse(data)
	if err != nil {
		return err
	}
	r, err := q.Build(reg, nil)
	if err != nil {
		return err
	}

	owner := retain.NewOwner("cli")
	if _, err := r.RetainWith(owner); err != nil {
		return err
	}
	defer func() { retErr = errors.Join(retErr, r.ReleaseFrom(owner)) }()

	switch c.format {
	case "table":
		return printTable(out, r)
	case "dot":
		fmt.Fprint(out, (&visualize.DotGenerator{}).Generate(visualize.BuildGraph(r)))
	case "mermaid":
		fmt.Fprint(out, (&visualize.MermaidGenerator{}).Generate(visualize.BuildGraph(r)))
	default:
		return fmt.Errorf("unknown format %q", c.format)
	}
	return nil
}

func printTable(out io.Writer, r relation.Relation) error {
	attrs := []relation.Attribute{}
	qualify := r.IsCompound()
	header := []string{}
	for _, set := range r.ComposedSets() {
		for _, attr := range set.Attributes() {
			attrs = append(attrs, attr)
			if qualify {
				header = append(header, attr.String())
			} else {
				header = append(header, attr.Name())
			}
		}
	}

	tuples, err := r.Tuples()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for _, t := range tuples {
		row := make([]string, len(attrs))
		for i, attr := range attrs {
			v, err := t.Get(attr)
			if err != nil {
				return err
			}
			if v != nil {
				row[i] = fmt.Sprint(v)
			}
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}
