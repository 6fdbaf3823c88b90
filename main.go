// spherize applies a spherical bulge to image layers and composites
// them over a background, driven through a persistent job ledger so
// batches survive interruption and can be inspected afterwards.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/browser"
	_ "modernc.org/sqlite"

	"github.com/d3ud3u-ntp2/spherize/appconfig"
	"github.com/d3ud3u-ntp2/spherize/deps"
	"github.com/d3ud3u-ntp2/spherize/downloads"
	"github.com/d3ud3u-ntp2/spherize/imageio"
	"github.com/d3ud3u-ntp2/spherize/jobqueue"
	"github.com/d3ud3u-ntp2/spherize/platform"
	"github.com/d3ud3u-ntp2/spherize/runners"
	"github.com/d3ud3u-ntp2/spherize/storage"

	_ "github.com/d3ud3u-ntp2/spherize/sphere"
)

func main() {
	op := flag.String("op", "render", "operation: render|invert|keyout|detect|unpack|fetch|publish")
	in := flag.String("in", "", "input image path or s3:// uri (comma-separated for batches)")
	bg := flag.String("bg", "", "background image path")
	out := flag.String("out", "", "output path (single input only)")
	kit := flag.String("kit", "", "layer kit: directory, archive, or URL")

	box := flag.String("box", "", "region of interest: inline x0,y0,x1,y1 or a box file")
	strength := flag.Float64("strength", 1.0, "warp strength in 0..1")
	smooth := flag.Bool("smooth", true, "soften the silhouette mask")
	threshold := flag.Int("threshold", 0, "intensity floor for box auto-detection")
	levels := flag.String("levels", "", "stretch mask contrast between lo,hi percentiles")
	workers := flag.Int("workers", 0, "pixel-loop goroutines (0 = all cores)")
	thumb := flag.Bool("thumb", false, "also write a thumbnail next to the output")
	quality := flag.Int("quality", 0, "JPEG quality for .jpg outputs")

	key := flag.String("key", "auto", "key color for keyout: #rrggbb or auto")
	tolerance := flag.Float64("tolerance", 0, "key distance tolerance")
	lab := flag.Bool("lab", false, "perceptual Lab keying")

	model := flag.String("model", "", "ONNX detector model path")

	publish := flag.String("publish", "", "upload the result: s3:// uri, bucket key, or auto")
	hookCmd := flag.String("hook", "", "post-render shell command (%s expands to the output)")
	open := flag.Bool("open", false, "open the result when the run finishes")

	watch := flag.String("watch", "", "watch a directory and render images as they appear")
	interval := flag.Duration("interval", 2*time.Second, "watch poll interval")
	resume := flag.Bool("resume", false, "drain unfinished ledger jobs and exit")
	ledgerPath := flag.String("ledger", "", "job ledger database path (overrides config)")
	caps := flag.Bool("caps", false, "report detector and runtime capabilities")
	setup := flag.Bool("setup", false, "download missing optional dependencies")
	flag.Parse()

	cfg, _, err := appconfig.Load()
	if err != nil {
		log.Printf("config: %v (continuing with defaults)", err)
		cfg = appconfig.Get()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *caps {
		os.Exit(runCaps(ctx))
	}
	if *setup {
		os.Exit(runSetup(ctx))
	}

	// Flags the user actually set win over kit and config defaults; the
	// rest stay unset so kits keep their own values.
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	inputs := splitInputs(*in)
	inputs = append(inputs, flag.Args()...)
	if *out != "" && len(inputs) > 1 {
		fmt.Fprintln(os.Stderr, "-out applies to a single input")
		os.Exit(2)
	}

	dbPath := cfg.LedgerPath
	if *ledgerPath != "" {
		dbPath = *ledgerPath
	}
	if dbPath == "" {
		dbPath = appconfig.DefaultLedgerPath()
	}
	db, err := openLedger(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open ledger: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	q := jobqueue.NewQueueWithDB(db)
	q.Notify = func(e jobqueue.Event) {
		if e.Type == "stdout" {
			fmt.Println(e.Line)
		}
	}
	// One ONNX session at a time; the runtime holds the model in memory.
	q.SetOpLimit("detect", 1)

	r := runners.New(q)
	defer r.Shutdown()

	if *watch != "" {
		q.SetOpLimit("render", 1)
		watchLoop(ctx, q, *watch, *interval, func(input string) jobqueue.Workflow {
			return buildWorkflow(cfg, *op, input, *bg, "", set, flagValues{
				kit: *kit, box: *box, strength: *strength, smooth: *smooth,
				threshold: *threshold, levels: *levels, workers: *workers,
				thumb: *thumb, quality: *quality, key: *key, tolerance: *tolerance,
				lab: *lab, model: *model, publish: *publish, hook: *hookCmd,
			})
		})
		return
	}

	if len(inputs) == 0 && *kit == "" && !*resume {
		fmt.Fprintln(os.Stderr, "usage: spherize -op render -in <image> -bg <image> [flags]")
		fmt.Fprintln(os.Stderr, "       spherize -op render -kit <dir|archive|url> [flags]")
		fmt.Fprintln(os.Stderr, "       spherize -caps | -setup | -resume | -watch <dir>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	fv := flagValues{
		kit: *kit, box: *box, strength: *strength, smooth: *smooth,
		threshold: *threshold, levels: *levels, workers: *workers,
		thumb: *thumb, quality: *quality, key: *key, tolerance: *tolerance,
		lab: *lab, model: *model, publish: *publish, hook: *hookCmd,
	}

	var openTargets []string
	if len(inputs) == 0 && *kit != "" {
		inputs = []string{""}
	}
	for _, input := range inputs {
		w := buildWorkflow(cfg, *op, input, *bg, *out, set, fv)
		if _, err := q.AddWorkflow(w); err != nil {
			fmt.Fprintf(os.Stderr, "failed to enqueue %s: %v\n", input, err)
			os.Exit(1)
		}
		if *open && *op == "render" {
			openTargets = append(openTargets, renderTarget(cfg, input, *out, fv))
		}
	}

	if err := r.Drain(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "interrupted: %v\n", err)
		os.Exit(1)
	}

	failed := 0
	for _, j := range q.GetJobs() {
		if j.State == jobqueue.StateError {
			failed++
		}
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d job(s) failed; see spherize-ledger for details\n", failed)
		os.Exit(1)
	}

	for _, target := range openTargets {
		if err := openTarget(target); err != nil {
			log.Printf("failed to open %s: %v", target, err)
		}
	}
}

// flagValues carries the render-related flags into workflow assembly.
type flagValues struct {
	kit       string
	box       string
	strength  float64
	smooth    bool
	threshold int
	levels    string
	workers   int
	thumb     bool
	quality   int
	key       string
	tolerance float64
	lab       bool
	model     string
	publish   string
	hook      string
}

func splitInputs(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// buildWorkflow assembles the job tree for one input: fetch children for
// s3 sources, the operation itself, then publish and hook stages above
// it when requested.
func buildWorkflow(cfg appconfig.Config, op, input, bg, out string, set map[string]bool, fv flagValues) jobqueue.Workflow {
	args := []string{}
	arg := func(name, v string) {
		if set[name] {
			args = append(args, name+"="+v)
		}
	}

	var children []jobqueue.Workflow
	fetch := func(src string) {
		if storage.IsURI(src) {
			children = append(children, jobqueue.Workflow{Op: "fetch", Input: src})
		}
	}

	switch op {
	case "render":
		if fv.kit != "" {
			args = append(args, "kit="+fv.kit)
		} else if bg != "" {
			args = append(args, "bg="+bg)
			fetch(bg)
		}
		fetch(input)
		arg("box", fv.box)
		arg("strength", strconv.FormatFloat(fv.strength, 'f', -1, 64))
		arg("smooth", strconv.FormatBool(fv.smooth))
		arg("threshold", strconv.Itoa(fv.threshold))
		arg("levels", fv.levels)
		arg("workers", strconv.Itoa(fv.workers))
		arg("quality", strconv.Itoa(fv.quality))
		if fv.thumb {
			args = append(args, "thumb=true")
		}
		outPath := renderTarget(cfg, input, out, fv)
		args = append(args, "out="+outPath)

		w := jobqueue.Workflow{Op: "render", Arguments: args, Input: input, Children: children}
		if fv.publish != "" {
			pubArgs := []string{}
			if fv.publish != "auto" {
				pubArgs = append(pubArgs, "to="+fv.publish)
			}
			w = jobqueue.Workflow{Op: "publish", Arguments: pubArgs, Input: outPath, Children: []jobqueue.Workflow{w}}
		}
		if fv.hook != "" || cfg.HookCommand != "" {
			hookArgs := []string{}
			if fv.hook != "" {
				hookArgs = append(hookArgs, "command="+fv.hook)
			}
			w = jobqueue.Workflow{Op: "hook", Arguments: hookArgs, Input: outPath, Children: []jobqueue.Workflow{w}}
		}
		return w

	case "invert":
		fetch(input)
		arg("quality", strconv.Itoa(fv.quality))
		if out != "" {
			args = append(args, "out="+out)
		}
		return jobqueue.Workflow{Op: "invert", Arguments: args, Input: input, Children: children}

	case "keyout":
		fetch(input)
		arg("key", fv.key)
		if set["tolerance"] {
			args = append(args, "tolerance="+strconv.FormatFloat(fv.tolerance, 'f', -1, 64))
		}
		if fv.lab {
			args = append(args, "lab=true")
		}
		if out != "" {
			args = append(args, "out="+out)
		}
		return jobqueue.Workflow{Op: "keyout", Arguments: args, Input: input, Children: children}

	case "detect":
		fetch(input)
		arg("model", fv.model)
		arg("threshold", strconv.Itoa(fv.threshold))
		if out != "" {
			args = append(args, "out="+out)
		}
		return jobqueue.Workflow{Op: "detect", Arguments: args, Input: input, Children: children}

	case "unpack":
		src := fv.kit
		if src == "" {
			src = input
		}
		return jobqueue.Workflow{Op: "unpack", Input: src}

	case "fetch":
		return jobqueue.Workflow{Op: "fetch", Input: input}

	case "publish":
		if fv.publish != "" && fv.publish != "auto" {
			args = append(args, "to="+fv.publish)
		}
		return jobqueue.Workflow{Op: "publish", Arguments: args, Input: input}

	default:
		fmt.Fprintf(os.Stderr, "unknown op %q\n", op)
		os.Exit(2)
		return jobqueue.Workflow{}
	}
}

// renderTarget mirrors the render task's default output naming so the
// publish, hook, and open stages know the path before the job runs.
func renderTarget(cfg appconfig.Config, input, out string, fv flagValues) string {
	if out != "" {
		return out
	}
	src := input
	if src == "" {
		src = fv.kit
	}
	if storage.IsURI(src) {
		src = storage.CachePath(src)
	}
	dir := cfg.OutputPath
	if dir == "" {
		dir = "output"
	}
	return imageio.OutputName(src, dir, "spherized", "png")
}

func openLedger(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// runCaps prints what the installed runtime can do.
func runCaps(ctx context.Context) int {
	statuses := deps.Report(ctx)
	fmt.Println("capabilities:")
	for _, s := range statuses {
		state := "missing"
		if s.Available {
			state = "ok"
		}
		line := fmt.Sprintf("  %-14s %-8s", s.Name, state)
		if s.Version != "" {
			line += " " + s.Version
		}
		if s.Detail != "" {
			line += " (" + s.Detail + ")"
		}
		fmt.Println(line)
	}
	return 0
}

// runSetup installs whatever registered dependencies are missing and
// know how to download themselves.
func runSetup(ctx context.Context) int {
	code := 0
	for _, dep := range deps.GetAll() {
		exists, _, err := dep.Check(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", dep.Name, err)
			code = 1
			continue
		}
		if exists {
			fmt.Printf("%s is already installed.\n", dep.Name)
			continue
		}
		if dep.ManualOnly || dep.DownloadFn == nil {
			fmt.Printf("%s must be installed manually from %s\n", dep.Name, dep.InstallURL)
			continue
		}
		var last string
		err = dep.DownloadFn(ctx, func(p downloads.Progress) {
			if p.Message == "" || p.Message == last {
				return
			}
			last = p.Message
			fmt.Println(p.Message)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to install %s: %v\n", dep.Name, err)
			code = 1
			continue
		}
		if err := deps.EnsureAvailable(ctx, dep.ID); err != nil {
			fmt.Fprintln(os.Stderr, err)
			code = 1
		}
	}
	return code
}

func openTarget(target string) error {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return browser.OpenURL(target)
	}
	return platform.OpenFile(target)
}

// watchLoop polls a directory and enqueues a render for every image
// that appears, until interrupted. Files are keyed by name and modtime
// so an edited file renders again.
func watchLoop(ctx context.Context, q *jobqueue.Queue, dir string, interval time.Duration, build func(string) jobqueue.Workflow) {
	log.Printf("watching %s every %s", dir, interval)
	seen := map[string]time.Time{}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	scan := func() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			log.Printf("watch: %v", err)
			return
		}
		for _, e := range entries {
			if e.IsDir() || !isImageName(e.Name()) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			path := filepath.Join(dir, e.Name())
			if t, ok := seen[path]; ok && !info.ModTime().After(t) {
				continue
			}
			seen[path] = info.ModTime()
			if _, err := q.AddWorkflow(build(path)); err != nil {
				log.Printf("watch: failed to enqueue %s: %v", path, err)
				continue
			}
			log.Printf("watch: queued %s", path)
		}
	}

	scan()
	for {
		select {
		case <-ctx.Done():
			log.Println("watch stopped")
			return
		case <-ticker.C:
			scan()
		}
	}
}

func isImageName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return true
	}
	return false
}
