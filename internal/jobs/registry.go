package jobs

import (
	"fmt"
	"time"

	"github.com/ternarybob/pillops/internal/common"
	"github.com/ternarybob/pillops/internal/models"
)

// Registry holds the immutable job descriptors, one per kind. Descriptors
// are registered once at startup; lookups after that are read-only.
type Registry struct {
	descriptors map[models.JobKind]*models.JobDescriptor
	order       []models.JobKind
}

// NewRegistry creates an empty descriptor registry.
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[models.JobKind]*models.JobDescriptor),
	}
}

// Register adds a descriptor. Duplicate kinds and descriptors without a
// start path are configuration errors.
func (r *Registry) Register(desc *models.JobDescriptor) error {
	if desc.Kind == "" {
		return fmt.Errorf("descriptor has no kind")
	}
	if desc.StartPath == "" {
		return fmt.Errorf("descriptor %s has no start path", desc.Kind)
	}
	if _, exists := r.descriptors[desc.Kind]; exists {
		return fmt.Errorf("descriptor %s already registered", desc.Kind)
	}
	if !desc.SingleShot() && desc.PollInterval <= 0 {
		return fmt.Errorf("descriptor %s has no poll interval", desc.Kind)
	}

	r.descriptors[desc.Kind] = desc
	r.order = append(r.order, desc.Kind)
	return nil
}

// Get returns the descriptor for a kind.
func (r *Registry) Get(kind models.JobKind) (*models.JobDescriptor, bool) {
	desc, ok := r.descriptors[kind]
	return desc, ok
}

// Kinds returns the registered kinds in registration order.
func (r *Registry) Kinds() []models.JobKind {
	kinds := make([]models.JobKind, len(r.order))
	copy(kinds, r.order)
	return kinds
}

// datasetFlags gate the plain split and augment jobs.
var datasetFlags = []string{"images", "segmentation_labels", "mask_images"}

// streamImageFlags gate stream-image generation. The split and
// background_changed flags are auto-remediable; remediation order matters
// because changing backgrounds depends on the split having completed.
var streamImageFlags = []string{"images", "mask_images", "split", "background_changed"}

// DefaultRegistry builds the registry for every job kind the vision backend
// exposes, applying poll-interval overrides from config.
func DefaultRegistry(config *common.Config) *Registry {
	r := NewRegistry()

	interval := func(kind models.JobKind) time.Duration {
		return config.PollIntervalFor(string(kind))
	}

	descriptors := []*models.JobDescriptor{
		{
			Kind:             models.KindSplit,
			Name:             "Dataset split",
			StartPath:        "/start_split",
			ProgressPath:     "/get_split_progress",
			StopPath:         "/stop_split",
			AvailabilityPath: "/data_availability_for_split",
			RequiredFlags:    datasetFlags,
			PollInterval:     interval(models.KindSplit),
		},
		{
			Kind:             models.KindAugment,
			Name:             "Image augmentation",
			StartPath:        "/start_augmentation",
			ProgressPath:     "/get_augmentation_progress",
			AvailabilityPath: "/data_availability",
			RequiredFlags:    datasetFlags,
			PollInterval:     interval(models.KindAugment),
		},
		{
			Kind:         models.KindKFoldSort,
			Name:         "K-fold sort",
			StartPath:    "/start_sort",
			ProgressPath: "/get_sort_process",
			PollInterval: interval(models.KindKFoldSort),
		},
		{
			Kind:         models.KindRemapAnnotation,
			Name:         "Annotation remap",
			StartPath:    "/start_remap_annotation",
			ProgressPath: "/get_remap_annotation_progress",
			PollInterval: interval(models.KindRemapAnnotation),
			Multipart:    true,
		},
		{
			Kind:             models.KindStreamImage,
			Name:             "Stream image generation",
			StartPath:        "/start_stream_images",
			ProgressPath:     "/get_stream_image_progress",
			StopPath:         "/stop_stream_image",
			AvailabilityPath: "/data_availability_for_stream_images",
			RequiredFlags:    streamImageFlags,
			Remediations: []models.Remediation{
				{Flag: "split", Path: "/split_consumer_reference"},
				{Flag: "background_changed", Path: "/change_background"},
			},
			PollInterval: interval(models.KindStreamImage),
		},
		{
			Kind:      models.KindCalibrationUpload,
			Name:      "Calibration image upload",
			StartPath: "/upload_calibration_images",
			Multipart: true,
		},
		{
			Kind:      models.KindCalibrationMatrix,
			Name:      "Calibration matrix generation",
			StartPath: "/generate_new_matrix_file",
		},
		{
			Kind:      models.KindCalibrationUndistort,
			Name:      "Image undistortion",
			StartPath: "/undistort_image",
		},
	}

	for _, desc := range descriptors {
		// Registration of the built-in set cannot fail.
		if err := r.Register(desc); err != nil {
			panic(err)
		}
	}

	return r
}
