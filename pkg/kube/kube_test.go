package kube

import (
	"context"
	"strings"
	"testing"

	meta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestJobName(t *testing.T) {
	tests := []struct {
		input, run, stem, run8 string
	}{
		{"/data/in/Cat Photo.JPG", "1234abcd-ffff", "cat-photo", "1234abcd"},
		{"__x__.png", "ab", "x", "ab"},
		{"___.png", "ab", "image", "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			want := "inpaint-" + tt.stem + "-" + InputHash(tt.input) + "-" + tt.run8
			if got := JobName(tt.input, tt.run); got != want {
				t.Errorf("JobName(%q) = %q, want %q", tt.input, got, want)
			}
		})
	}

	long := JobName(strings.Repeat("a", 100)+".png", "1234abcd-ffff")
	if len(long) > 63 {
		t.Errorf("name too long: %d", len(long))
	}
	if !strings.HasSuffix(long, "-1234abcd") {
		t.Errorf("suffix lost: %q", long)
	}
}

func TestJobNameDistinctInputs(t *testing.T) {
	pairs := [][2]string{
		{"input/a.jpg", "input/a.png"},
		{"input/IMG 1.jpg", "input/img-1.jpg"},
		{"day1/a.png", "day2/a.png"},
		{strings.Repeat("b", 90) + "1.png", strings.Repeat("b", 90) + "2.png"},
	}
	for _, p := range pairs {
		a, b := JobName(p[0], "run-1234"), JobName(p[1], "run-1234")
		if a == b {
			t.Errorf("%q and %q both map to %q", p[0], p[1], a)
		}
		for _, name := range []string{a, b} {
			if len(name) > 63 {
				t.Errorf("name too long: %q", name)
			}
			if !strings.HasSuffix(name, "-run-1234") {
				t.Errorf("run suffix lost: %q", name)
			}
		}
	}

	if JobName("input/a.png", "r") != JobName("input/a.png", "r") {
		t.Error("name not stable for the same input")
	}
	if len(InputHash("x")) != 6 {
		t.Errorf("hash length %d", len(InputHash("x")))
	}
}

func TestBuildJob(t *testing.T) {
	job := BuildJob(JobOptions{
		Name:      "inpaint-cat-1",
		Namespace: "batch",
		RunID:     "run-1",
		ClaimName: "images",
		Input:     "in/cat.jpg",
		Mask:      "mask.png",
		Output:    "out",
		Model:     "models/lama.onnx",
		Backend:   "onnx",
		Args:      []string{"--overlap", "0.5"},
	})

	if job.Namespace != "batch" || job.Labels["app"] != AppLabel || job.Labels["run-id"] != "run-1" {
		t.Errorf("unexpected meta: %+v", job.ObjectMeta)
	}
	spec := job.Spec.Template.Spec
	if len(spec.Containers) != 1 {
		t.Fatalf("containers = %d", len(spec.Containers))
	}
	c := spec.Containers[0]
	if c.Image != DefaultImage {
		t.Errorf("image = %s", c.Image)
	}
	want := []string{
		"--images", "/data/in/cat.jpg",
		"--mask", "/data/mask.png",
		"--output", "/data/out",
		"--parallel", "1",
		"--model", "/data/models/lama.onnx",
		"--backend", "onnx",
		"--overlap", "0.5",
	}
	if strings.Join(c.Args, " ") != strings.Join(want, " ") {
		t.Errorf("args = %v\nwant %v", c.Args, want)
	}
	if len(spec.Volumes) != 1 || spec.Volumes[0].PersistentVolumeClaim == nil ||
		spec.Volumes[0].PersistentVolumeClaim.ClaimName != "images" {
		t.Errorf("volumes = %+v", spec.Volumes)
	}
	if c.VolumeMounts[0].MountPath != DefaultMountPath {
		t.Errorf("mount = %s", c.VolumeMounts[0].MountPath)
	}
}

func TestDispatch(t *testing.T) {
	client := fake.NewSimpleClientset()
	d := NewDispatcherForClient(client, "batch")
	ctx := context.Background()
	opts := JobOptions{Name: "inpaint-cat-1", Input: "cat.jpg", Mask: "m.png", Output: "out"}

	created, err := d.Dispatch(ctx, opts)
	if err != nil || !created {
		t.Fatalf("first dispatch = %v, %v", created, err)
	}
	created, err = d.Dispatch(ctx, opts)
	if err != nil || created {
		t.Fatalf("second dispatch = %v, %v", created, err)
	}

	jobs, err := client.BatchV1().Jobs("batch").List(ctx, meta.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs.Items) != 1 {
		t.Errorf("jobs = %d, want 1", len(jobs.Items))
	}
}
