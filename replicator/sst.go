package replicator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"

	"github.com/fatih/color"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/nabbar/wsrepl/gcs"
)

// sstManifest is the JSON document a donor publishes at SST.ManifestPath
// through the Monitor module's HTTP endpoint: the snapshot's position in
// the replication stream plus where to fetch its bytes (SPEC_FULL.md L5
// addition over spec.md §4.6 "Donating").
type sstManifest struct {
	Seqno       int64  `json:"seqno"`
	StateID     string `json:"state_id"`
	SnapshotURL string `json:"snapshot_url"`
}

// OnRestore registers the database-side hook that installs a fetched
// snapshot. Without one, fetchSnapshot still drains and discards the
// transfer so the donor's HTTP handler observes a clean read.
func (n *Node) OnRestore(fn RestoreFunc) {
	n.mu.Lock()
	n.restore = fn
	n.mu.Unlock()
}

func (n *Node) retryClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = n.cfg.SST.RetryMax
	c.RetryWaitMin = n.cfg.SST.RetryWaitMin
	c.RetryWaitMax = n.cfg.SST.RetryWaitMax
	c.Logger = nil
	return c
}

// requestStateTransfer fetches the donor's manifest, downloads the
// snapshot it advertises, installs it via the registered RestoreFunc, and
// returns the position the snapshot represents.
func (n *Node) requestStateTransfer(donorAddr string) (gcs.SEQNO, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.SST.FetchTimeout)
	defer cancel()

	client := n.retryClient()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, "http://"+donorAddr+n.cfg.SST.ManifestPath, nil)
	if err != nil {
		return gcs.NoneSeqno, "", ErrorTransportError.Error(err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return gcs.NoneSeqno, "", ErrorSSTTimeout.Error(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return gcs.NoneSeqno, "", ErrorBadRequest.Error()
	}

	var m sstManifest
	if err = json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return gcs.NoneSeqno, "", ErrorParamsInvalid.Error(err)
	}

	if m.SnapshotURL != "" {
		if err = n.fetchSnapshot(ctx, client, m.SnapshotURL); err != nil {
			return gcs.NoneSeqno, "", err
		}
	}

	return gcs.SEQNO(m.Seqno), m.StateID, nil
}

// fetchSnapshot downloads the donor's snapshot with an operator-visible
// progress bar (SPEC_FULL.md L5 addition), then hands it to the
// registered RestoreFunc before the temp file is discarded.
func (n *Node) fetchSnapshot(ctx context.Context, client *retryablehttp.Client, url string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ErrorTransportError.Error(err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return ErrorSSTTimeout.Error(err)
	}
	defer func() { _ = resp.Body.Close() }()

	progress := mpb.NewWithContext(ctx, mpb.WithWidth(40))
	bar := progress.AddBar(resp.ContentLength,
		mpb.PrependDecorators(decor.Name(color.CyanString("sst snapshot"))),
		mpb.AppendDecorators(decor.CountersKibiByte("% .2f / % .2f")),
	)
	reader := bar.ProxyReader(resp.Body)
	defer func() { _ = reader.Close() }()

	n.mu.Lock()
	restore := n.restore
	n.mu.Unlock()

	if restore == nil {
		_, err = io.Copy(io.Discard, reader)
		progress.Wait()
		return err
	}

	tmp, err := os.CreateTemp("", "wsrepl-sst-*.snap")
	if err != nil {
		return ErrorTransportError.Error(err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err = io.Copy(tmp, reader); err != nil {
		_ = tmp.Close()
		return ErrorTransportError.Error(err)
	}
	progress.Wait()

	if err = tmp.Close(); err != nil {
		return ErrorTransportError.Error(err)
	}

	if _, _, err = restore(ctx, tmp.Name()); err != nil {
		return ErrorSSTTimeout.Error(err)
	}

	return nil
}
