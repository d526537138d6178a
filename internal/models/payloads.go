package models

import (
	"github.com/go-playground/validator/v10"
)

// SplitRequest is the start payload for the dataset split job.
// Percentages must sum to exactly 100; the check runs caller-side, before
// the orchestrator ever sees the payload.
type SplitRequest struct {
	Train      int  `json:"train" validate:"min=0,max=100"`
	Val        int  `json:"val" validate:"min=0,max=100"`
	Test       int  `json:"test" validate:"min=0,max=100"`
	Segregated bool `json:"segregated"`
}

// AugmentRequest is the start payload for the image augmentation job.
// The boolean fields select which transforms the backend applies.
type AugmentRequest struct {
	NumberOfImages   int  `json:"number_of_images" validate:"required,min=1"`
	WhiteBalance     bool `json:"white_balance"`
	Blur             bool `json:"blur"`
	Brightness       bool `json:"brightness"`
	Rotate           bool `json:"rotate"`
	Shift            bool `json:"shift"`
	Noise            bool `json:"noise"`
	ChangeBackground bool `json:"change_background"`
	QRCode           bool `json:"qr_code"`
}

// StreamImageRequest is the start payload for stream-image generation.
type StreamImageRequest struct {
	Mode string `json:"mode" validate:"required,oneof=consumer reference"`
}

// KFoldSortRequest is the start payload for the k-fold sorting job.
type KFoldSortRequest struct {
	SelectedFold string `json:"selected_fold" validate:"required"`
	NumFolds     int    `json:"num_folds" validate:"omitempty,min=2,max=10"`
}

// NewValidator builds the validator used by the API layer, with the
// struct-level rules registered.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(splitRequestValidation, SplitRequest{})
	return v
}

// splitRequestValidation enforces train+val+test == 100.
func splitRequestValidation(sl validator.StructLevel) {
	req := sl.Current().Interface().(SplitRequest)
	if req.Train+req.Val+req.Test != 100 {
		sl.ReportError(req.Train, "Train", "train", "percentsum", "")
	}
}
