package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the number of concurrent transfers when Options.Workers is unset.
const DefaultWorkers = 8

// Direction is the way bytes flow for a plan.
type Direction int

const (
	DirectionDownload Direction = iota
	DirectionUpload
)

func (d Direction) String() string {
	if d == DirectionUpload {
		return "upload"
	}
	return "download"
}

// Action is what happens to a planned entry.
type Action int

const (
	ActionTransfer Action = iota
	ActionSkip
)

func (a Action) String() string {
	if a == ActionSkip {
		return "skip"
	}
	return "transfer"
}

// Plan is the decision taken for one entry.
type Plan struct {
	Direction Direction
	LocalPath string
	RemoteKey string
	Action    Action
}

// Options configures a sync operation.
type Options struct {
	Src    string      // source address, local path or s3://bucket/key
	Dst    string      // destination address
	Stores StoreOpener // store per bucket

	Workers         int           // concurrent transfers, DefaultWorkers if <= 0
	TransferTimeout time.Duration // per transfer deadline, none if 0
	DryRun          bool          // if true, log plans without transferring
	ContentType     string        // upload content type, "" or "auto"
	Exclude         []string      // doublestar patterns on the slash relative path

	// CheckUploads skips uploads whose remote object already carries the
	// local file's digest. Uploads are unconditional without it.
	CheckUploads bool
}

// Result summarises a sync run.
type Result struct {
	Transferred int
	Skipped     int
	Failed      int
	Bytes       int64
	Duration    time.Duration
	Errors      []error
}

// Sync mirrors opts.Src into opts.Dst. Exactly one side must be remote.
//
// Downloads skip objects whose local copy already has the remote digest.
// Uploads always transfer unless CheckUploads is set. A failing entry does
// not stop the others; the run returns ErrEntriesFailed if any entry failed.
// Listing errors and cancellation abort the run.
func Sync(ctx context.Context, opts Options) (*Result, error) {
	src, err := ParseEndpoint(opts.Src)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	dst, err := ParseEndpoint(opts.Dst)
	if err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}

	switch {
	case src.IsRemote() && dst.IsRemote():
		return nil, fmt.Errorf("%w: %s -> %s", ErrBothRemote, src, dst)
	case !src.IsRemote() && !dst.IsRemote():
		return nil, fmt.Errorf("%w: %s -> %s", ErrBothLocal, src, dst)
	}

	if opts.Stores == nil {
		return nil, errors.New("sync: no store opener")
	}
	for _, p := range opts.Exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
	}

	r := &runner{opts: opts}
	start := time.Now()
	if src.IsRemote() {
		slog.Info("sync", "direction", DirectionDownload, "src", src, "dst", dst)
		err = r.downloadTree(ctx, src, dst.Path)
	} else {
		slog.Info("sync", "direction", DirectionUpload, "src", src, "dst", dst)
		err = r.upload(ctx, src.Path, dst)
	}

	res := r.result(time.Since(start))
	slog.Info("sync done",
		"transferred", res.Transferred,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"bytes", humanize.Bytes(uint64(res.Bytes)),
		"duration", res.Duration.Round(time.Millisecond),
	)
	if err != nil {
		return res, err
	}
	if res.Failed > 0 {
		return res, fmt.Errorf("%w: %d of %d", ErrEntriesFailed, res.Failed, res.Failed+res.Transferred+res.Skipped)
	}
	return res, nil
}

type runner struct {
	opts Options

	transferred atomic.Int64
	skipped     atomic.Int64
	bytes       atomic.Int64

	mu   gosync.Mutex
	errs []error
}

func (r *runner) downloadTree(ctx context.Context, src Endpoint, localRoot string) error {
	store := r.opts.Stores(src.Bucket)
	trailing := src.TrailingSlash()
	g := r.group()

	var listErr error
	for obj, err := range store.List(ctx, src.Key, "") {
		if err != nil {
			listErr = err
			break
		}
		if ctx.Err() != nil {
			break
		}
		// Zero-byte "dir/" markers have nothing to write locally.
		if obj.Dir || strings.HasSuffix(obj.Key, "/") {
			continue
		}
		if r.excluded(strings.TrimPrefix(obj.Key, src.Key)) {
			slog.Debug("sync", "op", DirectionDownload, "key", obj.Key, "action", "excluded")
			continue
		}

		plan := Plan{
			Direction: DirectionDownload,
			RemoteKey: obj.Key,
			LocalPath: LocalPathFor(src.Key, obj.Key, localRoot, trailing),
		}
		if !withinRoot(localRoot, plan.LocalPath) {
			err := localErr("download", obj.Key, plan.LocalPath, errOutsideRoot)
			r.fail(err)
			slog.Error("sync", "op", DirectionDownload, "key", obj.Key, "path", plan.LocalPath, "error", err)
			continue
		}
		g.Go(func() error {
			r.download(ctx, store, obj, plan)
			return nil
		})
	}
	g.Wait()

	if listErr != nil {
		return fmt.Errorf("%w: %w", ErrRemote, listErr)
	}
	return ctx.Err()
}

func (r *runner) download(ctx context.Context, store Store, obj ObjectInfo, plan Plan) {
	if fileExists(plan.LocalPath) && InSync(plan.LocalPath, obj.ETag) {
		plan.Action = ActionSkip
	}
	r.apply(ctx, plan, obj.Size, func(ctx context.Context) (int64, error) {
		return Download(ctx, store, plan.RemoteKey, plan.LocalPath)
	})
}

func (r *runner) upload(ctx context.Context, localRoot string, dst Endpoint) error {
	info, err := os.Stat(localRoot)
	if err != nil {
		return localErr("upload", dst.Key, localRoot, err)
	}
	store := r.opts.Stores(dst.Bucket)

	if !info.IsDir() {
		key := SingleFileKey(dst.Key)
		if key == "" {
			return invalidAddress("%s: uploading a single file needs a key", dst)
		}
		r.uploadEntry(ctx, store, Plan{Direction: DirectionUpload, LocalPath: localRoot, RemoteKey: key}, info.Size())
		return ctx.Err()
	}

	// WalkDir does not descend into a symlinked root, so walk its target.
	// The link name still decides remoteDir.
	walkRoot, err := filepath.EvalSymlinks(localRoot)
	if err != nil {
		return localErr("upload", dst.Key, localRoot, err)
	}
	remoteDir := RemoteDirFor(dst.Key, localRoot)
	g := r.group()
	for path, err := range Walk(walkRoot) {
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			r.fail(localErr("upload", "", path, err))
			continue
		}
		rel, err := filepath.Rel(walkRoot, path)
		if err != nil {
			r.fail(localErr("upload", "", path, err))
			continue
		}
		if r.excluded(filepath.ToSlash(rel)) {
			slog.Debug("sync", "op", DirectionUpload, "path", path, "action", "excluded")
			continue
		}
		key, err := RemoteKeyFor(remoteDir, walkRoot, path)
		if err != nil {
			r.fail(localErr("upload", "", path, err))
			continue
		}

		plan := Plan{Direction: DirectionUpload, LocalPath: path, RemoteKey: key}
		g.Go(func() error {
			r.uploadEntry(ctx, store, plan, -1)
			return nil
		})
	}
	g.Wait()
	return ctx.Err()
}

func (r *runner) uploadEntry(ctx context.Context, store Store, plan Plan, size int64) {
	if r.opts.CheckUploads {
		// A failed HEAD falls through to the upload.
		meta, err := store.Stat(ctx, plan.RemoteKey)
		if err != nil {
			slog.Debug("sync", "op", plan.Direction, "key", plan.RemoteKey, "stat_error", err)
		} else if meta != nil && InSync(plan.LocalPath, meta.ETag) {
			plan.Action = ActionSkip
		}
	}
	r.apply(ctx, plan, size, func(ctx context.Context) (int64, error) {
		return Upload(ctx, store, plan.LocalPath, plan.RemoteKey, r.opts.ContentType)
	})
}

func (r *runner) apply(ctx context.Context, plan Plan, size int64, transfer func(context.Context) (int64, error)) {
	log := slog.With("op", plan.Direction, "key", plan.RemoteKey, "path", plan.LocalPath)

	if plan.Action == ActionSkip {
		r.skipped.Add(1)
		log.Info("sync", "action", plan.Action)
		return
	}
	if r.opts.DryRun {
		r.transferred.Add(1)
		if size >= 0 {
			log = log.With("size", humanize.Bytes(uint64(size)))
		}
		log.Info("sync", "action", plan.Action, "dry_run", true)
		return
	}

	if r.opts.TransferTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.TransferTimeout)
		defer cancel()
	}

	n, err := transfer(ctx)
	if err != nil {
		r.fail(err)
		log.Error("sync", "action", plan.Action, "error", err)
		return
	}
	r.transferred.Add(1)
	r.bytes.Add(n)
	log.Info("sync", "action", plan.Action, "size", humanize.Bytes(uint64(n)))
}

func (r *runner) group() *errgroup.Group {
	workers := r.opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	g := new(errgroup.Group)
	g.SetLimit(workers)
	return g
}

func (r *runner) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *runner) excluded(rel string) bool {
	rel = strings.TrimLeft(rel, "/")
	for _, p := range r.opts.Exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func (r *runner) result(d time.Duration) *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &Result{
		Transferred: int(r.transferred.Load()),
		Skipped:     int(r.skipped.Load()),
		Failed:      len(r.errs),
		Bytes:       r.bytes.Load(),
		Duration:    d,
		Errors:      append([]error(nil), r.errs...),
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
