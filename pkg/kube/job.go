// Package kube fans a batch out as one Kubernetes Job per input image.
package kube

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	meta "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	// AppLabel marks every Job created by the controller.
	AppLabel = "tiled-inpaint"
	// DefaultImage runs the inpaint CLI.
	DefaultImage = "ghcr.io/phantominthewire/tiled-inpaint:latest"
	// DefaultMountPath is where the shared claim appears in the pod.
	DefaultMountPath = "/data"

	volumeName = "shared"
)

var invalidName = regexp.MustCompile(`[^a-z0-9-]`)

func int32Ptr(i int32) *int32 { return &i }

// JobName builds a DNS-1123 name from the input file and run id. A short
// hash of the whole input path keeps a.jpg and a.png, or "IMG 1.jpg" and
// "img-1.jpg", apart.
func JobName(input, runID string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	sanitized := invalidName.ReplaceAllString(strings.ToLower(base), "-")
	sanitized = strings.Trim(sanitized, "-")

	suffix := InputHash(input)
	if runID != "" {
		if len(runID) > 8 {
			runID = runID[:8]
		}
		suffix += "-" + runID
	}
	prefix := "inpaint-"
	// Keep room for "-" + suffix within 63 characters.
	if room := 63 - len(prefix) - 1 - len(suffix); len(sanitized) > room {
		sanitized = strings.TrimRight(sanitized[:room], "-")
	}
	if sanitized == "" {
		sanitized = "image"
	}
	return prefix + sanitized + "-" + suffix
}

// InputHash returns six hex characters derived from the input path.
func InputHash(input string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(filepath.ToSlash(input))).String()[:6]
}

// JobOptions describes one image's Job. Paths are relative to the shared
// claim.
type JobOptions struct {
	Name      string
	Namespace string
	RunID     string
	Image     string
	ClaimName string
	MountPath string

	Input   string
	Mask    string
	Output  string
	Model   string
	Backend string
	// Args are appended to the CLI invocation.
	Args []string
}

// BuildJob returns the Job for opts without contacting the cluster.
func BuildJob(opts JobOptions) *batchv1.Job {
	image := opts.Image
	if image == "" {
		image = DefaultImage
	}
	mount := opts.MountPath
	if mount == "" {
		mount = DefaultMountPath
	}
	in := func(p string) string { return path.Join(mount, p) }

	args := []string{
		"--images", in(opts.Input),
		"--mask", in(opts.Mask),
		"--output", in(opts.Output),
		"--parallel", "1",
	}
	if opts.Model != "" {
		args = append(args, "--model", in(opts.Model))
	}
	if opts.Backend != "" {
		args = append(args, "--backend", opts.Backend)
	}
	args = append(args, opts.Args...)

	labels := map[string]string{"app": AppLabel}
	if opts.RunID != "" {
		labels["run-id"] = opts.RunID
	}

	return &batchv1.Job{
		ObjectMeta: meta.ObjectMeta{
			Name:      opts.Name,
			Namespace: opts.Namespace,
			Labels:    labels,
			Annotations: map[string]string{
				"tiled-inpaint/input": opts.Input,
			},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit: int32Ptr(1),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: meta.ObjectMeta{
					Labels: map[string]string{"job-name": opts.Name, "app": AppLabel},
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyOnFailure,
					Containers: []corev1.Container{{
						Name:    "inpaint",
						Image:   image,
						Command: []string{"inpaint"},
						Args:    args,
						Env: []corev1.EnvVar{
							{Name: "INPAINT_RUN_ID", Value: opts.RunID},
						},
						VolumeMounts: []corev1.VolumeMount{{
							Name:      volumeName,
							MountPath: mount,
						}},
					}},
					Volumes: []corev1.Volume{{
						Name: volumeName,
						VolumeSource: corev1.VolumeSource{
							PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
								ClaimName: opts.ClaimName,
							},
						},
					}},
				},
			},
		},
	}
}
