// boxdetect runs the ONNX subject detector over a single image and
// prints the subject box, or writes it as a box file renders can use.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/d3ud3u-ntp2/spherize/deps"
	"github.com/d3ud3u-ntp2/spherize/detect"
	"github.com/d3ud3u-ntp2/spherize/imageio"
)

func main() {
	var (
		modelPath  string
		imagePath  string
		ortLibPath string
		inputName  string
		outputName string
		size       int
		threshold  float64
		interp     string
		outPath    string
	)

	flag.StringVar(&modelPath, "model", "", "Path to ONNX saliency model file")
	flag.StringVar(&imagePath, "image", "", "Path to input image file")
	flag.StringVar(&ortLibPath, "ort", "", "Path to onnxruntime shared library (optional)")
	flag.StringVar(&inputName, "input", "input", "Model input tensor name")
	flag.StringVar(&outputName, "output", "output", "Model output tensor name")
	flag.IntVar(&size, "size", 320, "Model input width and height")
	flag.Float64Var(&threshold, "threshold", 0.5, "Heatmap probability floor in 0..1")
	flag.StringVar(&interp, "interp", "bicubic", "Preprocess interpolation: bicubic|bilinear|nearest|catmullrom")
	flag.StringVar(&outPath, "out", "", "Write a box file instead of printing")
	flag.Parse()

	if modelPath == "" || imagePath == "" {
		fmt.Fprintln(os.Stderr, "Error: --model and --image are required")
		flag.Usage()
		os.Exit(2)
	}

	img, err := imageio.Load(imagePath)
	if err != nil {
		log.Fatalf("failed to load image: %v", err)
	}

	opts := detect.DefaultOptions()
	opts.InputName = inputName
	opts.OutputName = outputName
	opts.InputWidth = size
	opts.InputHeight = size
	opts.Threshold = float32(threshold)
	opts.Interpolation = interp
	opts.ORTSharedLibraryPath = deps.LibraryPath(ortLibPath)

	box, err := detect.Subject(modelPath, img, opts)
	if errors.Is(err, detect.ErrCGORequired) {
		log.Fatalf("this binary was built without ONNX support: %v", err)
	}
	if err != nil {
		log.Fatalf("detection failed: %v", err)
	}

	if outPath == "" {
		fmt.Println(box.String())
		return
	}
	if err := imageio.EnsureDir(filepath.Dir(outPath)); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}
	content := fmt.Sprintf("# spherize detect %s\n%s\n", filepath.Base(imagePath), box.String())
	if err := os.WriteFile(outPath, []byte(content), 0644); err != nil {
		log.Fatalf("failed to write box file: %v", err)
	}
	fmt.Printf("Wrote %s (%s)\n", outPath, box.String())
}
