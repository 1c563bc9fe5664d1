// Command controller dispatches one Kubernetes Job per input image. Every
// Job runs the inpaint CLI against a shared volume, so re-running the
// controller only schedules images whose output is still missing.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"sigs.k8s.io/yaml"

	"github.com/PhantomInTheWire/tiled-inpaint/pkg/batch"
	"github.com/PhantomInTheWire/tiled-inpaint/pkg/kube"
	"github.com/PhantomInTheWire/tiled-inpaint/pkg/logging"
	"github.com/PhantomInTheWire/tiled-inpaint/pkg/storage"
)

type options struct {
	root       string
	images     string
	mask       string
	model      string
	output     string
	backend    string
	namespace  string
	claim      string
	image      string
	kubeconfig string
	dryRun     bool
	dev        bool
	args       []string
}

// dispatcher is satisfied by *kube.Dispatcher.
type dispatcher interface {
	Dispatch(ctx context.Context, opts kube.JobOptions) (bool, error)
}

func main() {
	var o options
	fs := pflag.NewFlagSet("controller", pflag.ContinueOnError)
	fs.StringVar(&o.root, "root", "./shared", "local path of the shared volume")
	fs.StringVar(&o.images, "images", "input", "input folder or glob, relative to root")
	fs.StringVar(&o.mask, "mask", "mask.png", "mask path, relative to root")
	fs.StringVar(&o.model, "model", "", "model path, relative to root")
	fs.StringVar(&o.output, "output", "output", "output folder, relative to root")
	fs.StringVar(&o.backend, "backend", "onnx", "backend passed to the workers")
	fs.StringVar(&o.namespace, "namespace", "default", "namespace for the Jobs")
	fs.StringVar(&o.claim, "claim", "inpaint-shared", "PersistentVolumeClaim mounted by the Jobs")
	fs.StringVar(&o.image, "image", kube.DefaultImage, "worker container image")
	fs.StringVar(&o.kubeconfig, "kubeconfig", "", "kubeconfig path, empty for the default")
	fs.BoolVar(&o.dryRun, "dry-run", false, "print the Job manifests instead of creating them")
	fs.BoolVar(&o.dev, "dev", false, "human readable debug logging")
	fs.StringSliceVar(&o.args, "worker-arg", nil, "extra argument for the inpaint CLI, repeatable")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	log, err := logging.New(logging.Options{Dev: o.dev})
	if err != nil {
		fmt.Fprintln(os.Stderr, "controller:", err)
		os.Exit(2)
	}
	defer log.Sync()

	var d dispatcher
	if o.dryRun {
		d = printer{w: os.Stdout}
	} else {
		kd, err := kube.NewDispatcher(o.kubeconfig, o.namespace)
		if err != nil {
			log.Fatal("kubernetes client", zap.Error(err))
		}
		d = kd
	}

	n, err := dispatch(context.Background(), o, d, uuid.NewString(), log)
	if err != nil {
		log.Error("dispatch failed", zap.Error(err))
		if errors.Is(err, batch.ErrNoInputs) {
			os.Exit(1)
		}
		os.Exit(2)
	}
	log.Info("jobs dispatched", zap.Int("count", n))
}

// dispatch creates a Job for every input without an output yet.
func dispatch(ctx context.Context, o options, d dispatcher, runID string, log *zap.Logger) (int, error) {
	inputs, err := batch.Discover(filepath.Join(o.root, o.images))
	if err != nil {
		return 0, err
	}
	out, err := storage.NewLocal(filepath.Join(o.root, o.output), 0)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, in := range inputs {
		exists, err := out.Exists(ctx, storage.OutputName(in))
		if err != nil {
			return created, err
		}
		if exists {
			log.Info("skipping, output exists", zap.String("image", in))
			continue
		}
		rel, err := filepath.Rel(o.root, in)
		if err != nil {
			return created, err
		}
		job := kube.JobOptions{
			Name:      kube.JobName(filepath.ToSlash(rel), runID),
			Namespace: o.namespace,
			RunID:     runID,
			Image:     o.image,
			ClaimName: o.claim,
			Input:     filepath.ToSlash(rel),
			Mask:      o.mask,
			Output:    o.output,
			Model:     o.model,
			Backend:   o.backend,
			Args:      o.args,
		}
		ok, err := d.Dispatch(ctx, job)
		if err != nil {
			log.Error("failed to create job", zap.String("image", in), zap.Error(err))
			continue
		}
		if !ok {
			log.Warn("job already exists, not created", zap.String("job", job.Name), zap.String("image", in))
			continue
		}
		created++
		log.Info("job created", zap.String("job", job.Name), zap.String("image", in))
	}
	return created, nil
}

// printer writes manifests for --dry-run.
type printer struct{ w io.Writer }

func (p printer) Dispatch(_ context.Context, opts kube.JobOptions) (bool, error) {
	job := kube.BuildJob(opts)
	job.APIVersion = "batch/v1"
	job.Kind = "Job"
	b, err := yaml.Marshal(job)
	if err != nil {
		return false, err
	}
	fmt.Fprintf(p.w, "---\n%s", b)
	return true, nil
}
