// Command symbolsync downloads the published symbol masters into the
// data directory once and exits. Useful for provisioning a fresh host
// or forcing a refresh outside the scheduled window.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"orderbridge/internal/refdata"
)

func main() {
	dataDir := flag.String("data-dir", "data/symbols", "directory to write master files into")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall download timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	d := refdata.NewDownloader(*dataDir)
	if err := d.FetchAll(ctx); err != nil {
		log.Fatalf("[symbolsync] download failed: %v", err)
	}

	// Load once to verify the files are usable before the bridge does.
	store := refdata.NewStore(*dataDir)
	if !store.Loaded() {
		log.Fatal("[symbolsync] downloaded files did not load")
	}
	log.Println("[symbolsync] masters downloaded and verified")
}
