package refdata

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"orderbridge/internal/markethours"
)

const defaultMasterBaseURL = "https://public.fyers.in/sym_details"

// downloadFiles is every master the bridge mirrors locally. Only the
// derivative files feed the resolver; the cash-market files are kept
// for operator tooling.
var downloadFiles = []string{
	"NSE_FO.csv", "BSE_FO.csv", "MCX_COM.csv",
	"NSE_CM.csv", "BSE_CM.csv", "NSE_CD.csv",
}

// Downloader mirrors the published symbol masters into the data dir.
type Downloader struct {
	BaseURL string
	DataDir string
	Client  *http.Client
}

func NewDownloader(dataDir string) *Downloader {
	return &Downloader{
		BaseURL: defaultMasterBaseURL,
		DataDir: dataDir,
		Client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

// FetchAll downloads every master file. Each file is written to a temp
// path and renamed into place so readers never see a partial file. A
// failed file leaves the previous copy untouched.
func (d *Downloader) FetchAll(ctx context.Context) error {
	if err := os.MkdirAll(d.DataDir, 0o755); err != nil {
		return fmt.Errorf("refdata: create data dir: %w", err)
	}
	var firstErr error
	for _, name := range downloadFiles {
		if err := d.fetchOne(ctx, name); err != nil {
			log.Printf("[refdata] download %s: %v", name, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		log.Printf("[refdata] downloaded %s", name)
	}
	return firstErr
}

func (d *Downloader) fetchOne(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+"/"+name, nil)
	if err != nil {
		return err
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %s", resp.Status)
	}

	dst := filepath.Join(d.DataDir, name)
	tmp, err := os.CreateTemp(d.DataDir, name+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// Refresher re-downloads the masters before each trading day's open and
// reloads the store.
type Refresher struct {
	Downloader *Downloader
	Store      *Store
}

// Run blocks until ctx is cancelled, waking at each scheduled refresh
// time (a fixed margin before market open on trading days).
func (r *Refresher) Run(ctx context.Context) {
	for {
		next := markethours.NextRefresh(time.Now())
		if !next.After(time.Now()) {
			next = markethours.NextRefresh(time.Now().Add(24 * time.Hour))
		}
		wait := time.Until(next)
		log.Printf("[refdata] next refresh at %s (%s)", next.Format(time.RFC3339), wait.Round(time.Second))

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if err := r.Downloader.FetchAll(ctx); err != nil {
			log.Printf("[refdata] scheduled refresh: %v", err)
		}
		r.Store.Reload()
	}
}
