package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/bjtill/VCF-Sample-Filter/internal/datasource"
	"github.com/bjtill/VCF-Sample-Filter/internal/datasource/file"
	"github.com/bjtill/VCF-Sample-Filter/internal/datasource/httpds"
	"github.com/bjtill/VCF-Sample-Filter/internal/probe"
)

// main is the entrypoint for the header probing CLI. It reads just the
// preamble of a VCF, local path or URL, and prints the sample columns
// the header declares. Useful for building a sample list before a
// filter run.
func main() {
	var (
		flagInput = flag.String(
			"i",
			"",
			"VCF to probe (.vcf or .vcf.gz path, or an http(s) URL)",
		)
		flagBytes = flag.Int(
			"bytes",
			httpds.DefaultPreambleBytes,
			"max bytes fetched from a remote input; local files are streamed",
		)
		flagFold = flag.Bool(
			"fold",
			false,
			"also print folded names (lowercase, accents stripped)",
		)
		flagJSON = flag.Bool(
			"json",
			false,
			"print the full result as JSON instead of one sample per line",
		)
	)
	flag.Parse()

	if *flagInput == "" {
		fmt.Fprintln(os.Stderr, "missing -i")
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var src datasource.Source
	if strings.HasPrefix(*flagInput, "http://") || strings.HasPrefix(*flagInput, "https://") {
		// Ranged fetch: the header lives in the first bytes, the record
		// body never needs to cross the wire.
		src = httpds.Preamble{URL: *flagInput, MaxBytes: *flagBytes}
	} else {
		src = file.NewLocal(*flagInput)
	}

	res, err := probe.Probe(ctx, src, probe.Options{Fold: *flagFold})
	if err != nil {
		log.Fatalf("probe: %v", err)
	}

	if *flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			log.Fatalf("encode result: %v", err)
		}
		return
	}

	for i, s := range res.Samples {
		if *flagFold {
			fmt.Printf("%s\t%s\n", s, res.Folded[i])
			continue
		}
		fmt.Println(s)
	}
}
