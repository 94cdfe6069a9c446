package main

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/detector"
	"github.com/ayusman/drishti/internal/identity"
	"github.com/ayusman/drishti/internal/logging"
	"github.com/ayusman/drishti/internal/session"
	"github.com/ayusman/drishti/internal/store"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <name> <image>...",
	Short: "Enroll a student from photos",
	Long: `Enroll a student from one or more photos. Each photo is run through the
face detector, the largest face is cropped and its embedding is added to
the student's gallery entry. The student is created if it does not exist.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().Bool("no-detect", false, "Treat each image as an already cropped face")
	enrollCmd.Flags().Float64("margin", capture.DefaultCropMargin, "Margin around the detected face box, as a fraction of its size")
}

// errNoFace marks an image in which the detector found nothing.
var errNoFace = errors.New("no face found")

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.L()
	defer log.Sync()

	name, paths := args[0], args[1:]
	noDetect, _ := cmd.Flags().GetBool("no-detect")
	margin, _ := cmd.Flags().GetFloat64("margin")

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ext, err := detector.NewServiceExtractor(serviceConfig(cfg.Extractor.ServiceConfig), cfg.Extractor.Dims)
	if err != nil {
		return fmt.Errorf("embedding extractor: %w", err)
	}
	defer ext.Close()

	var det detector.Detector
	if !noDetect {
		sd, err := detector.NewServiceDetector(serviceConfig(cfg.Detector))
		if err != nil {
			return fmt.Errorf("face detector: %w", err)
		}
		defer sd.Close()
		det = sd
	}

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("Enrolling "+name),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	ctx := cmd.Context()
	var enrolled, failed int
	for _, path := range paths {
		err := enrollPhoto(ctx, st, ext, det, name, path, margin)
		bar.Add(1)
		if err != nil {
			failed++
			log.Warn("enroll photo", zap.String("path", path), zap.Error(err))
			continue
		}
		enrolled++
	}
	bar.Finish()

	fmt.Printf("\nEnrolled %d photo(s) for %s", enrolled, name)
	if failed > 0 {
		fmt.Printf(" (%d failed)", failed)
	}
	fmt.Println()

	if enrolled == 0 {
		return fmt.Errorf("no photos enrolled for %s", name)
	}
	return nil
}

type enrollStore interface {
	Enroll(label string, emb identity.Embedding) (*store.Student, error)
}

func enrollPhoto(ctx context.Context, st enrollStore, ext session.Extractor, det detector.Detector, name, path string, margin float64) error {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return fmt.Errorf("read image %s", path)
	}
	defer mat.Close()

	region, err := faceRegion(&mat, det, margin)
	if err != nil {
		return err
	}

	emb, err := ext.Extract(ctx, region)
	if err != nil {
		return fmt.Errorf("extract embedding: %w", err)
	}
	_, err = st.Enroll(name, emb)
	return err
}

func faceRegion(mat *gocv.Mat, det detector.Detector, margin float64) (image.Image, error) {
	if det == nil {
		return mat.ToImage()
	}

	faces, err := det.Detect(mat)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	face, ok := detector.Largest(faces)
	if !ok {
		return nil, errNoFace
	}
	return capture.CropFace(mat, face.Box, margin)
}
